package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/api"
	"github.com/tenebris-tech/docxblank/internal/config"
	"github.com/tenebris-tech/docxblank/internal/logging"
	"github.com/tenebris-tech/docxblank/processor"
	"github.com/tenebris-tech/docxblank/queue"
	"github.com/tenebris-tech/docxblank/storage"
)

const (
	// ServerReadTimeout is the HTTP server read timeout
	ServerReadTimeout = 30 * time.Second

	// ServerWriteTimeout covers synchronous remediation of large documents
	ServerWriteTimeout = 5 * time.Minute

	// ServerIdleTimeout is the HTTP server idle timeout
	ServerIdleTimeout = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("server")

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	proc := processor.New(
		processor.WithMaxAttempts(cfg.MaxAttempts),
		processor.WithEngineTimeout(cfg.EngineTimeout),
		processor.WithTempDir(cfg.TempDir),
		processor.WithLogger(logging.Component("processor")),
	)

	store, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open result store")
	}
	defer store.Close()

	deps := &api.Deps{
		Processor: proc,
		Store:     store,
		Logger:    logging.Component("api"),
	}

	var consumer *queue.Consumer
	if cfg.QueueEnabled() {
		client, err := queue.NewClient(cfg.RedisURL, cfg.QueueName)
		if err != nil {
			log.WithError(err).Fatal("Failed to create queue client")
		}
		defer client.Close()
		deps.Queue = client

		var publisher queue.Publisher
		progress, err := queue.NewProgressPublisher(cfg.RedisURL, cfg.ProgressChannel)
		if err != nil {
			log.WithError(err).Warn("Progress events disabled")
		} else {
			defer progress.Close()
			publisher = progress
		}

		handler, err := queue.NewHandler(&queue.HandlerConfig{
			Processor:       proc,
			Store:           store,
			Publisher:       publisher,
			OutputRetention: cfg.JobRetention,
			Logger:          logging.Component("queue"),
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to create job handler")
		}

		consumer, err = queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Handler:     handler,
			Logger:      logging.Component("queue"),
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to create queue consumer")
		}
		if err := consumer.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start queue consumer")
		}
	} else {
		log.Info("REDIS_URL not set; background jobs disabled")
	}

	r := gin.Default()
	r.MaxMultipartMemory = 8 << 20

	api.SetupRoutes(r, &api.Config{
		MaxFileSize: cfg.MaxFileSize,
		TempDir:     filepath.Join(cfg.TempDir, "docxblank-uploads"),
	}, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  ServerReadTimeout,
		WriteTimeout: ServerWriteTimeout,
		IdleTimeout:  ServerIdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"addr":        srv.Addr,
			"maxFileSize": cfg.MaxFileSize,
			"tempDir":     cfg.TempDir,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if consumer != nil {
		consumer.Stop()
	}

	log.Info("Server exited gracefully")
}

// openStore uses PostgreSQL when DATABASE_URL is set and memory otherwise
func openStore(cfg *config.Config, log *logrus.Entry) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set; job results kept in memory")
		return storage.NewMemoryStore(), nil
	}

	pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
