// Package api exposes blank-page detection and removal over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/tenebris-tech/docxblank/processor"
	"github.com/tenebris-tech/docxblank/queue"
	"github.com/tenebris-tech/docxblank/storage"
)

// DefaultFilePermissions for temp directory creation
const DefaultFilePermissions = 0755

// Config holds HTTP configuration
type Config struct {
	MaxFileSize int64
	TempDir     string
}

// Enqueuer submits background remediation jobs
type Enqueuer interface {
	EnqueueRemediation(ctx context.Context, payload *queue.RemediationPayload) (*asynq.TaskInfo, error)
}

// Deps holds the collaborators of the handlers
type Deps struct {
	Processor *processor.Processor
	Store     storage.Store

	// Queue is nil when background jobs are disabled
	Queue Enqueuer

	Logger *logrus.Entry
}

// SetupRoutes registers every route on r
func SetupRoutes(r *gin.Engine, config *Config, deps *Deps) {
	apiGroup := r.Group("/api/docx")
	{
		apiGroup.POST("/detect", func(c *gin.Context) { HandleDetect(c, config, deps) })
		apiGroup.POST("/remediate", func(c *gin.Context) { HandleRemediate(c, config, deps) })
		apiGroup.POST("/jobs", func(c *gin.Context) { HandleCreateJob(c, config, deps) })
		apiGroup.GET("/jobs/:id", func(c *gin.Context) { HandleJobStatus(c, deps) })
		apiGroup.GET("/jobs/:id/download", func(c *gin.Context) { HandleJobDownload(c, deps) })
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "docxblank",
			"queue":   deps.Queue != nil,
		})
	})
}
