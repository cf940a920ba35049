package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Progress event types
const (
	EventProgress      = "progress"
	EventPageProcessed = "page_processed"
	EventPageFailed    = "page_failed"
	EventCompleted     = "completed"
)

// ProgressEvent is one job progress notification
type ProgressEvent struct {
	JobID     string    `json:"jobId"`
	Type      string    `json:"type"`
	Percent   int       `json:"percent,omitempty"`
	Page      int       `json:"page,omitempty"`
	Method    string    `json:"method,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers progress events
type Publisher interface {
	Publish(ctx context.Context, event ProgressEvent) error
}

// ProgressPublisher publishes events as JSON on a Redis channel
type ProgressPublisher struct {
	client  *redis.Client
	channel string
}

// NewProgressPublisher connects to Redis at redisURL
func NewProgressPublisher(redisURL, channel string) (*ProgressPublisher, error) {
	if channel == "" {
		return nil, fmt.Errorf("progress channel is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ProgressPublisher{client: client, channel: channel}, nil
}

// Publish sends event to the channel
func (p *ProgressPublisher) Publish(ctx context.Context, event ProgressEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

// Close releases the Redis connection
func (p *ProgressPublisher) Close() error {
	return p.client.Close()
}
