package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/internal/logging"
)

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Handler     *Handler
	Logger      *logrus.Entry
}

// Consumer pulls remediation jobs from the queue
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	config *ConsumerConfig
	log    *logrus.Entry
}

// NewConsumer creates a consumer. Nothing connects until Start.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Component("queue")
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.WithError(err).WithField("type", task.Type()).Warn("Task processing error")
			}),
			Logger: log,
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(TypeRemediateDocument, cfg.Handler)

	return &Consumer{
		server: server,
		mux:    mux,
		config: cfg,
		log:    log,
	}, nil
}

// Start begins processing jobs in the background
func (c *Consumer) Start() error {
	c.log.WithFields(logrus.Fields{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}).Info("Starting queue consumer")

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop waits for active jobs and stops the consumer
func (c *Consumer) Stop() {
	c.log.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.log.Info("Queue consumer stopped")
}
