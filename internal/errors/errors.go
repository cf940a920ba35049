package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Document engine errors
	ErrorDocumentAccess ErrorCode = "DOCUMENT_ACCESS"
	ErrorSaveFailed     ErrorCode = "SAVE_FAILED"
	ErrorEngineTimeout  ErrorCode = "ENGINE_TIMEOUT"

	// Pipeline errors
	ErrorAnalysisFailed ErrorCode = "ANALYSIS_FAILED"
	ErrorStrategyFailed ErrorCode = "STRATEGY_FAILED"

	// Caller errors
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	Path      string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err or any error it wraps is a ProcessingError with code
func HasCode(err error, code ErrorCode) bool {
	var pe *ProcessingError
	for err != nil {
		if !stderrors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Cause
	}
	return false
}

// CodeOf returns the code of the outermost ProcessingError in err's chain, or ""
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Factory functions for common errors

func NewDocumentAccessError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDocumentAccess,
		Message:   "Cannot open or read document",
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewAnalysisError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorAnalysisFailed,
		Message:   "Blank page detection aborted",
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStrategyError(path string, method string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStrategyFailed,
		Message:   fmt.Sprintf("Remediation strategy failed: %s", method),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"method": method,
		},
		Cause: cause,
	}
}

func NewSaveError(path string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorSaveFailed,
		Message:   "Failed to save document revision",
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewEngineTimeoutError(operation string, duration time.Duration) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEngineTimeout,
		Message:   fmt.Sprintf("Document engine call %s timed out after %v", operation, duration),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation":        operation,
			"timeout_duration": duration.String(),
		},
	}
}

func NewInvalidInputError(message string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidInput,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Path != "" {
		result["path"] = e.Path
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
