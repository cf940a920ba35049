// Package queue runs remediation as background jobs. Jobs travel through
// asynq on Redis; per-page progress is published on a Redis channel.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeRemediateDocument is the asynq task type for remediation jobs
const TypeRemediateDocument = "remediate-document"

// RemediationPayload describes one remediation job. When MarkedPages is
// empty the worker detects blank pages first and removes all of them.
type RemediationPayload struct {
	JobID       string   `json:"jobId"`
	Filename    string   `json:"filename"`
	InputPath   string   `json:"inputPath"`
	OutputPath  string   `json:"outputPath,omitempty"`
	MarkedPages []int    `json:"markedPages,omitempty"`
	Methods     []string `json:"methods,omitempty"`
}

// NewRemediationTask wraps payload in an asynq task
func NewRemediationTask(payload *RemediationPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if payload.InputPath == "" {
		return nil, fmt.Errorf("input path is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeRemediateDocument, data), nil
}

// ParseRemediationPayload decodes the payload of a remediation task
func ParseRemediationPayload(task *asynq.Task) (*RemediationPayload, error) {
	if task.Type() != TypeRemediateDocument {
		return nil, fmt.Errorf("unexpected task type %q", task.Type())
	}
	var payload RemediationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if payload.JobID == "" || payload.InputPath == "" {
		return nil, fmt.Errorf("job payload is missing jobId or inputPath")
	}
	return &payload, nil
}
