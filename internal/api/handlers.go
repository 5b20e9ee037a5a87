package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/veo-video-proxy/internal/chat"
	"github.com/rossigee/veo-video-proxy/internal/jobs"
	"github.com/rossigee/veo-video-proxy/pkg/types"
)

// Version is reported by the health endpoint.
var Version = "dev"

// JobManager interface for job operations
type JobManager interface {
	StartJob(req types.GenerateRequest) (string, error)
	GetJobStatus(jobID string) (*types.StatusResponse, error)
	GetVideo(jobID string, index int) ([]byte, string, error)
	GetActiveJobs() int
}

// Handler handles HTTP API requests
type Handler struct {
	jobManager    JobManager
	maxConcurrent int
	started       time.Time
}

// NewHandler creates a new API handler. Health reports degraded once more
// than maxConcurrent jobs are active.
func NewHandler(jobManager JobManager, maxConcurrent int) *Handler {
	return &Handler{
		jobManager:    jobManager,
		maxConcurrent: maxConcurrent,
		started:       time.Now(),
	}
}

// SetupRoutes configures the API routes. Middleware guards /api/v1.
func SetupRoutes(router *gin.Engine, handler *Handler, middleware ...gin.HandlerFunc) {
	api := router.Group("/api/v1", middleware...)
	{
		api.POST("/generate", handler.Generate)
		api.GET("/status/:job_id", handler.GetJobStatus)
		api.GET("/videos/:job_id/:index", handler.DownloadVideo)
	}

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Generate accepts a chat message and starts a generation job
func (h *Handler) Generate(c *gin.Context) {
	var req types.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	jobID, err := h.jobManager.StartJob(req)
	if err != nil {
		var rejection *chat.RejectionError
		switch {
		case errors.As(err, &rejection):
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   "invalid message",
				Message: rejection.Message,
				Code:    http.StatusBadRequest,
			})
		case errors.Is(err, jobs.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{
				Error:   "service unavailable",
				Message: err.Error(),
				Code:    http.StatusServiceUnavailable,
			})
		default:
			logrus.WithError(err).Error("Failed to start generation job")
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{
				Error:   "failed to start generation",
				Message: err.Error(),
				Code:    http.StatusInternalServerError,
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, types.GenerateResponse{
		JobID:         jobID,
		Status:        "accepted",
		CorrelationID: req.CorrelationID,
	})
}

// GetJobStatus returns the status of a generation job
func (h *Handler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	status, err := h.jobManager.GetJobStatus(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "job not found",
			Message: err.Error(),
			Code:    http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// DownloadVideo streams one decoded sample of a completed job
func (h *Handler) DownloadVideo(c *gin.Context) {
	jobID := c.Param("job_id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: "index must be a non-negative integer",
			Code:    http.StatusBadRequest,
		})
		return
	}

	data, mimeType, err := h.jobManager.GetVideo(jobID, index)
	switch {
	case errors.Is(err, jobs.ErrJobNotReady):
		c.JSON(http.StatusConflict, types.ErrorResponse{
			Error:   "video not ready",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
		return
	case err != nil:
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "video not found",
			Message: err.Error(),
			Code:    http.StatusNotFound,
		})
		return
	}

	if mimeType == "" {
		mimeType = "video/mp4"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobs.VideoFilename(jobID, index)))
	c.Data(http.StatusOK, mimeType, data)
}

// HealthCheck provides service health information
func (h *Handler) HealthCheck(c *gin.Context) {
	activeJobs := h.jobManager.GetActiveJobs()

	response := types.HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Version:    Version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		ActiveJobs: activeJobs,
	}

	// Jobs are queueing behind the concurrency limit
	if h.maxConcurrent > 0 && activeJobs > h.maxConcurrent {
		response.Status = "degraded"
	}

	c.JSON(http.StatusOK, response)
}
