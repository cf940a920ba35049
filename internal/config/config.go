// Package config loads service configuration from environment variables.
// Commands call godotenv first so a local .env file can supply them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds service configuration
type Config struct {
	// Remediation
	MaxAttempts   int
	EngineTimeout time.Duration
	TempDir       string

	// Logging
	LogLevel  string
	LogFormat string

	// HTTP server
	Port        string
	MaxFileSize int64

	// Queue; empty RedisURL disables background jobs
	RedisURL          string
	QueueName         string
	WorkerConcurrency int
	ProgressChannel   string
	JobRetention      time.Duration

	// Optional result persistence
	DatabaseURL string
}

// Load reads configuration from the environment and validates it
func Load() (*Config, error) {
	cfg := &Config{
		MaxAttempts:       getEnvAsIntOrDefault("DOCXBLANK_MAX_ATTEMPTS", 5),
		EngineTimeout:     getEnvAsDurationOrDefault("DOCXBLANK_ENGINE_TIMEOUT", 30*time.Second),
		TempDir:           getEnvOrDefault("DOCXBLANK_TEMP_DIR", os.TempDir()),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
		Port:              getEnvOrDefault("PORT", "8080"),
		MaxFileSize:       getEnvAsInt64OrDefault("MAX_FILE_SIZE", 50*1024*1024), // 50MB
		RedisURL:          getEnvOrDefault("REDIS_URL", ""),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "docxblank:jobs"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 2),
		ProgressChannel:   getEnvOrDefault("PROGRESS_CHANNEL", "docxblank:progress"),
		JobRetention:      getEnvAsDurationOrDefault("JOB_RETENTION", 24*time.Hour),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 || c.MaxAttempts > 100 {
		return fmt.Errorf("DOCXBLANK_MAX_ATTEMPTS must be between 1 and 100, got %d", c.MaxAttempts)
	}

	if c.EngineTimeout < 0 {
		return fmt.Errorf("DOCXBLANK_ENGINE_TIMEOUT must not be negative, got %s", c.EngineTimeout)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 1<<30 { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.JobRetention <= 0 {
		return fmt.Errorf("JOB_RETENTION must be positive, got %s", c.JobRetention)
	}

	if c.RedisURL != "" && c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required when REDIS_URL is set")
	}

	return nil
}

// QueueEnabled reports whether background jobs are configured
func (c *Config) QueueEnabled() bool {
	return c.RedisURL != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("45s") or plain seconds ("45")
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
