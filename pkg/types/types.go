package types

import (
	"encoding/json"
	"time"
)

// Attachment is a file attached to a chat message
type Attachment struct {
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// GenerateRequest represents a chat message asking for a video
type GenerateRequest struct {
	Text            string       `json:"text"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	SampleCount     int          `json:"sample_count,omitempty" binding:"omitempty,min=1,max=4"`
	AspectRatio     string       `json:"aspect_ratio,omitempty" binding:"omitempty,oneof=16:9 9:16"`
	DurationSeconds int          `json:"duration_seconds,omitempty" binding:"omitempty,min=1,max=60"`
	CorrelationID   string       `json:"correlation_id,omitempty"`
}

// GenerateResponse represents the response to a generation request
type GenerateResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// JobStatus represents the status of a generation job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// ProgressInfo represents progress information for a job
type ProgressInfo struct {
	Stage        string  `json:"stage"`
	Percent      float64 `json:"percent"`
	PollAttempts int     `json:"poll_attempts,omitempty"`
}

// VideoInfo describes one produced video
type VideoInfo struct {
	Index       int    `json:"index"`
	Filename    string `json:"filename"`
	Size        int    `json:"size,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	StorageURL  string `json:"storage_url,omitempty"`
}

// ProviderError is the error reported by the video provider
type ProviderError struct {
	Code    int               `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Status  string            `json:"status,omitempty"`
	Details []json.RawMessage `json:"details,omitempty"`
}

// StatusResponse represents the response to a status query
type StatusResponse struct {
	JobID         string         `json:"job_id"`
	Status        JobStatus      `json:"status"`
	Outcome       string         `json:"outcome,omitempty"`
	Operation     string         `json:"operation,omitempty"`
	Progress      *ProgressInfo  `json:"progress,omitempty"`
	Videos        []VideoInfo    `json:"videos,omitempty"`
	Error         string         `json:"error,omitempty"`
	ProviderError *ProviderError `json:"provider_error,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Uptime     string    `json:"uptime"`
	ActiveJobs int       `json:"active_jobs"`
}
