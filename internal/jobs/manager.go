package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/veo-video-proxy/internal/chat"
	"github.com/rossigee/veo-video-proxy/internal/metrics"
	"github.com/rossigee/veo-video-proxy/internal/veo"
	"github.com/rossigee/veo-video-proxy/pkg/types"
)

// User-visible failure messages.
const (
	MsgGenerationFailed = "video generation failed: %s"
	MsgUnexpected       = "unexpected response from the video provider"
	MsgTimedOut         = "video generation timed out"
	MsgProcessing       = "Error processing the request: %v"
)

var (
	// ErrJobNotFound is returned for unknown or evicted job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrVideoNotFound is returned when a job has no downloadable sample at the index.
	ErrVideoNotFound = errors.New("video not found")
	// ErrJobNotReady is returned when videos are requested before the job completed.
	ErrJobNotReady = errors.New("job has not completed")
	// ErrShuttingDown is returned by StartJob after Shutdown was called.
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// Generator runs one generation to completion.
type Generator interface {
	NewRequest(prompt string, image *veo.Image, sampleCount int, aspectRatio string, durationSeconds int) veo.GenerationRequest
	Generate(ctx context.Context, req veo.GenerationRequest, updater veo.ProgressUpdater) *veo.Outcome
}

// ImageFetcher downloads an image attachment.
type ImageFetcher interface {
	Fetch(ctx context.Context, attachment types.Attachment) (*veo.Image, error)
}

// VideoPublisher uploads a finished video and returns where it was stored.
type VideoPublisher interface {
	PublishVideo(ctx context.Context, jobID, filename, contentType string, data []byte) (string, error)
}

// Options tune the manager. Zero values get defaults.
type Options struct {
	MaxConcurrent int
	JobTimeout    time.Duration
	Retain        int

	SampleCount     int
	AspectRatio     string
	DurationSeconds int

	// Publisher is optional.
	Publisher VideoPublisher
	Metrics   *metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 2
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 30 * time.Minute
	}
	if o.Retain <= 0 {
		o.Retain = 100
	}
	if o.SampleCount <= 0 {
		o.SampleCount = 1
	}
	if o.AspectRatio == "" {
		o.AspectRatio = veo.AspectLandscape
	}
	if o.DurationSeconds <= 0 {
		o.DurationSeconds = 6
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}
	return o
}

// Job represents a video generation job
type Job struct {
	ID      string
	Request types.GenerateRequest

	mu            sync.RWMutex
	status        types.JobStatus
	progress      *types.ProgressInfo
	outcome       veo.OutcomeStatus
	operation     string
	videos        []veo.Video
	storageURLs   map[int]string
	errMsg        string
	providerError *veo.ProviderError
	createdAt     time.Time
	updatedAt     time.Time
}

// UpdateProgress implements veo.ProgressUpdater
func (j *Job) UpdateProgress(stage string, percent float64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	attempts := 0
	if j.progress != nil {
		attempts = j.progress.PollAttempts
	}
	if stage == "polling" && j.progress != nil && j.progress.Stage == "polling" {
		attempts++
	}
	j.progress = &types.ProgressInfo{
		Stage:        stage,
		Percent:      percent,
		PollAttempts: attempts,
	}
	j.updatedAt = time.Now()
}

func (j *Job) setStatus(status types.JobStatus) {
	j.mu.Lock()
	j.status = status
	j.updatedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) fail(outcome veo.OutcomeStatus, msg string) {
	j.mu.Lock()
	j.status = types.StatusFailed
	if j.outcome == "" {
		j.outcome = outcome
	}
	j.errMsg = msg
	j.updatedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) terminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status == types.StatusCompleted || j.status == types.StatusFailed
}

// Manager manages video generation jobs
type Manager struct {
	generator Generator
	fetcher   ImageFetcher
	opts      Options

	jobs      map[string]*Job
	semaphore chan struct{} // Limits concurrent generations
	mu        sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new job manager
func NewManager(generator Generator, fetcher ImageFetcher, opts Options) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		generator: generator,
		fetcher:   fetcher,
		opts:      opts,
		jobs:      make(map[string]*Job),
		semaphore: make(chan struct{}, opts.MaxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// StartJob validates the message and starts generating in the background.
// Rejected messages return a *chat.RejectionError.
func (m *Manager) StartJob(req types.GenerateRequest) (string, error) {
	if err := chat.ValidateMessage(req.Text, req.Attachments); err != nil {
		return "", err
	}
	if m.ctx.Err() != nil {
		return "", ErrShuttingDown
	}

	jobID := uuid.New().String()
	now := time.Now()
	job := &Job{
		ID:        jobID,
		Request:   req,
		status:    types.StatusPending,
		createdAt: now,
		updatedAt: now,
	}

	m.mu.Lock()
	m.jobs[jobID] = job
	m.mu.Unlock()

	m.opts.Metrics.JobStarted()
	m.wg.Add(1)

	// Start job in background
	go func() {
		defer m.wg.Done()
		m.runJob(job)
	}()

	logrus.WithFields(logrus.Fields{
		"job_id":         jobID,
		"correlation_id": req.CorrelationID,
		"attachments":    len(req.Attachments),
	}).Info("Started video generation job")

	return jobID, nil
}

// GetJobStatus returns the status of a job
func (m *Manager) GetJobStatus(jobID string) (*types.StatusResponse, error) {
	job, err := m.lookup(jobID)
	if err != nil {
		return nil, err
	}

	job.mu.RLock()
	defer job.mu.RUnlock()

	response := &types.StatusResponse{
		JobID:         job.ID,
		Status:        job.status,
		Outcome:       string(job.outcome),
		Operation:     job.operation,
		Error:         job.errMsg,
		CorrelationID: job.Request.CorrelationID,
		CreatedAt:     job.createdAt,
		UpdatedAt:     job.updatedAt,
	}
	if job.progress != nil {
		progress := *job.progress
		response.Progress = &progress
	}
	if job.providerError != nil {
		response.ProviderError = &types.ProviderError{
			Code:    job.providerError.Code,
			Message: job.providerError.Message,
			Status:  job.providerError.Status,
			Details: job.providerError.Details,
		}
	}
	for _, v := range job.videos {
		info := types.VideoInfo{
			Index:      v.Index,
			Filename:   VideoFilename(job.ID, v.Index),
			Size:       len(v.Data),
			StorageURL: v.URI,
		}
		if len(v.Data) > 0 {
			info.DownloadURL = fmt.Sprintf("/api/v1/videos/%s/%d", job.ID, v.Index)
		}
		if u, ok := job.storageURLs[v.Index]; ok {
			info.StorageURL = u
		}
		response.Videos = append(response.Videos, info)
	}

	return response, nil
}

// GetVideo returns the decoded bytes and mime type of one sample.
func (m *Manager) GetVideo(jobID string, index int) ([]byte, string, error) {
	job, err := m.lookup(jobID)
	if err != nil {
		return nil, "", err
	}

	job.mu.RLock()
	defer job.mu.RUnlock()

	if job.status != types.StatusCompleted {
		return nil, "", fmt.Errorf("%w: %s", ErrJobNotReady, job.status)
	}
	for _, v := range job.videos {
		if v.Index == index && len(v.Data) > 0 {
			return v.Data, v.MimeType, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %s/%d", ErrVideoNotFound, jobID, index)
}

// VideoFilename is the download name of a sample.
func VideoFilename(jobID string, index int) string {
	return fmt.Sprintf("%s_%d.mp4", jobID, index)
}

func (m *Manager) lookup(jobID string) (*Job, error) {
	m.mu.RLock()
	job, exists := m.jobs[jobID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// runJob executes a generation job. JobTimeout starts once a slot is acquired.
func (m *Manager) runJob(job *Job) {
	started := time.Now()
	log := logrus.WithField("job_id", job.ID)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Video generation job panicked")
			job.fail("internal_error", fmt.Sprintf(MsgProcessing, r))
		}
		job.mu.RLock()
		outcome, attempts := job.outcome, 0
		if job.progress != nil {
			attempts = job.progress.PollAttempts
		}
		job.mu.RUnlock()
		m.opts.Metrics.ObserveGeneration(string(outcome), attempts, time.Since(started))
		m.opts.Metrics.JobFinished()
		m.CleanupCompletedJobs()
	}()

	// Acquire semaphore (limit concurrent operations)
	select {
	case m.semaphore <- struct{}{}:
		defer func() { <-m.semaphore }()
	case <-m.ctx.Done():
		job.fail(veo.OutcomeCancelled, fmt.Sprintf(MsgProcessing, m.ctx.Err()))
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.JobTimeout)
	defer cancel()

	job.setStatus(types.StatusRunning)

	if err := m.generate(ctx, job); err != nil {
		log.WithError(err).Warn("Video generation job failed")
		return
	}

	job.mu.Lock()
	progress := &types.ProgressInfo{Stage: "completed", Percent: 100}
	if job.progress != nil {
		progress.PollAttempts = job.progress.PollAttempts
	}
	job.status = types.StatusCompleted
	job.progress = progress
	job.updatedAt = time.Now()
	job.mu.Unlock()

	log.WithField("duration", time.Since(started).Round(time.Millisecond)).Info("Video generation job completed")
}

// generate performs the generation steps and records the result on the job.
func (m *Manager) generate(ctx context.Context, job *Job) error {
	req := job.Request

	var image *veo.Image
	if len(req.Attachments) == 1 {
		job.UpdateProgress("fetching_attachment", 5)
		img, err := m.fetcher.Fetch(ctx, req.Attachments[0])
		if err != nil {
			job.fail("download_failed", chat.MsgDownloadFailed)
			return err
		}
		image = img
	}

	genReq := m.generator.NewRequest(req.Text, image,
		orDefault(req.SampleCount, m.opts.SampleCount),
		orDefaultString(req.AspectRatio, m.opts.AspectRatio),
		orDefault(req.DurationSeconds, m.opts.DurationSeconds))

	outcome := m.generator.Generate(ctx, genReq, job)

	job.mu.Lock()
	job.outcome = outcome.Status
	job.operation = outcome.Operation
	job.providerError = outcome.ProviderError
	if job.progress == nil {
		job.progress = &types.ProgressInfo{Stage: "submitting"}
	}
	job.progress.PollAttempts = outcome.Attempts
	job.mu.Unlock()

	if !outcome.Success {
		job.fail(outcome.Status, failureMessage(outcome))
		return outcome.Err
	}

	job.mu.Lock()
	job.videos = outcome.Videos
	job.mu.Unlock()

	if m.opts.Publisher != nil {
		m.publish(ctx, job, outcome.Videos)
	}
	return nil
}

// publish uploads every decoded sample. Upload failures are logged; the
// videos stay downloadable from the API.
func (m *Manager) publish(ctx context.Context, job *Job, videos []veo.Video) {
	job.UpdateProgress("publishing", 95)

	urls := make(map[int]string)
	for _, v := range videos {
		if len(v.Data) == 0 {
			continue
		}
		u, err := m.opts.Publisher.PublishVideo(ctx, job.ID, VideoFilename(job.ID, v.Index), v.MimeType, v.Data)
		m.opts.Metrics.ObserveDelivery(err)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"job_id": job.ID,
				"index":  v.Index,
			}).Warn("Failed to publish video")
			continue
		}
		urls[v.Index] = u
	}

	job.mu.Lock()
	job.storageURLs = urls
	job.mu.Unlock()
}

func failureMessage(outcome *veo.Outcome) string {
	switch outcome.Status {
	case veo.OutcomeProviderFailed:
		msg := "unknown error"
		if outcome.ProviderError != nil && outcome.ProviderError.Message != "" {
			msg = outcome.ProviderError.Message
		}
		return fmt.Sprintf(MsgGenerationFailed, msg)
	case veo.OutcomeDecodeFailed:
		return MsgUnexpected
	case veo.OutcomeTimedOut:
		return MsgTimedOut
	default:
		return fmt.Sprintf(MsgProcessing, outcome.Err)
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// GetActiveJobs returns the count of active jobs
func (m *Manager) GetActiveJobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, job := range m.jobs {
		if !job.terminal() {
			count++
		}
	}
	return count
}

// CleanupCompletedJobs removes old finished jobs (keeps the most recent Retain)
func (m *Manager) CleanupCompletedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()

	type finished struct {
		id      string
		updated time.Time
	}
	done := make([]finished, 0)
	for id, job := range m.jobs {
		if job.terminal() {
			job.mu.RLock()
			done = append(done, finished{id: id, updated: job.updatedAt})
			job.mu.RUnlock()
		}
	}
	if len(done) <= m.opts.Retain {
		return
	}

	sort.Slice(done, func(i, k int) bool { return done[i].updated.Before(done[k].updated) })
	for _, f := range done[:len(done)-m.opts.Retain] {
		delete(m.jobs, f.id)
	}
}

// Shutdown cancels running jobs and waits for them to finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}
