package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// DefaultMaxRetry bounds redelivery of a failed job
const DefaultMaxRetry = 2

// Client submits remediation jobs
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient creates a client for the queue at redisURL
func NewClient(redisURL, queueName string) (*Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}, nil
}

// EnqueueRemediation submits a job. The job ID doubles as the task ID so a
// job cannot be queued twice.
func (c *Client) EnqueueRemediation(ctx context.Context, payload *RemediationPayload) (*asynq.TaskInfo, error) {
	task, err := NewRemediationTask(payload)
	if err != nil {
		return nil, err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(DefaultMaxRetry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return info, nil
}

// Close releases the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
