package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	apperrors "github.com/tenebris-tech/docxblank/internal/errors"
	"github.com/tenebris-tech/docxblank/internal/logging"
	"github.com/tenebris-tech/docxblank/processor"
	"github.com/tenebris-tech/docxblank/remediate"
	"github.com/tenebris-tech/docxblank/storage"
)

const (
	// DefaultProcessingTimeout bounds one job
	DefaultProcessingTimeout = 5 * time.Minute

	// DefaultOutputRetention is how long a finished job's output stays downloadable
	DefaultOutputRetention = 24 * time.Hour
)

// HandlerConfig holds the collaborators of a Handler
type HandlerConfig struct {
	Processor *processor.Processor
	Store     storage.Store

	// Publisher is optional
	Publisher Publisher

	// ProcessingTimeout bounds one job; zero uses DefaultProcessingTimeout
	ProcessingTimeout time.Duration

	// OutputRetention delays removal of a finished job's output; zero uses
	// DefaultOutputRetention
	OutputRetention time.Duration

	Logger *logrus.Entry
}

// Handler runs remediation jobs. It implements asynq.Handler.
type Handler struct {
	processor *processor.Processor
	store     storage.Store
	publisher Publisher
	timeout   time.Duration
	retention time.Duration
	log       *logrus.Entry
}

// NewHandler creates a job handler
func NewHandler(cfg *HandlerConfig) (*Handler, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("Store is required")
	}
	timeout := cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = DefaultProcessingTimeout
	}
	retention := cfg.OutputRetention
	if retention <= 0 {
		retention = DefaultOutputRetention
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Component("queue")
	}
	return &Handler{
		processor: cfg.Processor,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		timeout:   timeout,
		retention: retention,
		log:       log,
	}, nil
}

// ProcessTask handles one remediation task. Only timeouts are retried; every
// other failure is deterministic and skips retry. The uploaded input is
// removed once the job can no longer be retried, and the output is removed
// after the retention period.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRemediationPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	jlog := h.log.WithFields(logrus.Fields{"job": payload.JobID, "path": payload.InputPath})
	startTime := time.Now()

	record := &storage.JobRecord{
		ID:          payload.JobID,
		Filename:    payload.Filename,
		Status:      storage.JobProcessing,
		MarkedPages: payload.MarkedPages,
	}
	h.save(ctx, record, jlog)

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.run(processCtx, payload, record, jlog)
	record.ApplyResult(result, err)
	h.save(ctx, record, jlog)

	duration := time.Since(startTime)
	if err != nil {
		jlog.WithError(err).WithField("duration", duration).Error("Job failed")
		timedOut := errors.Is(processCtx.Err(), context.DeadlineExceeded) || apperrors.HasCode(err, apperrors.ErrorEngineTimeout)
		if timedOut {
			if !retryPending(ctx) {
				h.release(payload, jlog)
			}
			return fmt.Errorf("job %s timed out: %w", payload.JobID, err)
		}
		h.release(payload, jlog)
		return fmt.Errorf("job %s failed: %v: %w", payload.JobID, err, asynq.SkipRetry)
	}
	h.release(payload, jlog)

	jlog.WithFields(logrus.Fields{
		"duration":  duration,
		"processed": len(record.ProcessedPages),
		"remaining": len(record.RemainingPages),
	}).Info("Job completed")
	return nil
}

func (h *Handler) run(ctx context.Context, payload *RemediationPayload, record *storage.JobRecord, jlog *logrus.Entry) (*remediate.Result, error) {
	var extra []remediate.Option
	if len(payload.Methods) > 0 {
		methods := make([]remediate.Method, 0, len(payload.Methods))
		for _, name := range payload.Methods {
			m, err := remediate.ParseMethod(name)
			if err != nil {
				return nil, apperrors.NewInvalidInputError(err.Error())
			}
			methods = append(methods, m)
		}
		extra = append(extra, remediate.WithMethods(methods...))
	}

	marked := payload.MarkedPages
	if len(marked) == 0 {
		report, err := h.processor.Detect(ctx, payload.InputPath)
		if err != nil {
			return nil, err
		}
		marked = report.BlankPages()
		record.MarkedPages = marked
		jlog.WithField("pages", marked).Info("Detected blank pages")
	}

	extra = append(extra,
		remediate.WithOnProgress(func(percent int, message string) {
			record.Progress = percent
			h.save(ctx, record, jlog)
			h.publish(ctx, ProgressEvent{JobID: payload.JobID, Type: EventProgress, Percent: percent, Message: message}, jlog)
		}),
		remediate.WithOnPageProcessed(func(page int, method remediate.Method) {
			h.publish(ctx, ProgressEvent{JobID: payload.JobID, Type: EventPageProcessed, Page: page, Method: string(method)}, jlog)
		}),
		remediate.WithOnPageFailed(func(page int, reason string) {
			h.publish(ctx, ProgressEvent{JobID: payload.JobID, Type: EventPageFailed, Page: page, Message: reason}, jlog)
		}),
		remediate.WithOnComplete(func(result *remediate.Result) {
			h.publish(ctx, ProgressEvent{JobID: payload.JobID, Type: EventCompleted, Percent: 100, Message: result.Message}, jlog)
		}),
	)

	return h.processor.Remediate(ctx, payload.InputPath, marked, payload.OutputPath, extra...)
}

// retryPending reports whether asynq will run the task again after a failure.
// Outside a worker there is no retry.
func retryPending(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried < maxRetry
}

// release removes the job input now and the output after the retention period
func (h *Handler) release(payload *RemediationPayload, jlog *logrus.Entry) {
	if err := os.Remove(payload.InputPath); err != nil && !os.IsNotExist(err) {
		jlog.WithError(err).Warn("Failed to remove job input")
	}
	if payload.OutputPath == "" {
		return
	}
	output := payload.OutputPath
	time.AfterFunc(h.retention, func() {
		if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
			jlog.WithError(err).Warn("Failed to remove job output")
		}
	})
}

func (h *Handler) save(ctx context.Context, record *storage.JobRecord, jlog *logrus.Entry) {
	if err := h.store.SaveResult(ctx, record); err != nil {
		jlog.WithError(err).Warn("Failed to save job status")
	}
}

func (h *Handler) publish(ctx context.Context, event ProgressEvent, jlog *logrus.Entry) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, event); err != nil {
		jlog.WithError(err).Debug("Failed to publish progress")
	}
}
