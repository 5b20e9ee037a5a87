// Package veo drives Vertex AI long-running video generation: it composes the
// predict request, submits it, polls the operation and decodes the samples.
package veo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is passed to NewService; nothing is read from the environment.
type Config struct {
	ProjectID string
	Location  string
	Model     string
	// BaseURL overrides the regional API root, e.g. for tests.
	BaseURL string

	Seed          int
	StorageTarget string

	PollAttempts int
	PollInterval time.Duration
}

// Endpoints returns the predict and fetch URLs for the configured model.
func (c Config) Endpoints() (predict, fetch string) {
	location := c.Location
	if location == "" {
		location = "us-central1"
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1beta1", location)
	}
	model := fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s",
		base, url.PathEscape(c.ProjectID), url.PathEscape(location), url.PathEscape(c.Model))
	return model + ":predictLongRunning", model + ":fetchPredictOperation"
}

// OutcomeStatus classifies how a generation ended.
type OutcomeStatus string

const (
	OutcomeSucceeded       OutcomeStatus = "succeeded"
	OutcomeInvalidRequest  OutcomeStatus = "invalid_request"
	OutcomeTransportFailed OutcomeStatus = "transport_failed"
	OutcomeProviderFailed  OutcomeStatus = "provider_failed"
	OutcomeDecodeFailed    OutcomeStatus = "decode_failed"
	OutcomeTimedOut        OutcomeStatus = "timed_out"
	OutcomeCancelled       OutcomeStatus = "cancelled"
)

// Outcome is the result of Service.Generate. Failures are reported here rather
// than returned as errors.
type Outcome struct {
	Success   bool
	Status    OutcomeStatus
	Operation string
	Attempts  int

	Response      *PredictResponse
	Videos        []Video
	ProviderError *ProviderError
	Err           error
}

// Video returns the bytes of the first decoded sample, if any.
func (o *Outcome) Video() []byte {
	if o == nil || len(o.Videos) == 0 {
		return nil
	}
	return o.Videos[0].Data
}

// Service generates videos through the provider's long-running API.
type Service struct {
	cfg        Config
	poller     *Poller
	predictURL string
	fetchURL   string
}

// NewService creates a service bound to one project and model.
func NewService(cfg Config, transport Transport) *Service {
	predict, fetch := cfg.Endpoints()
	return &Service{
		cfg:        cfg,
		poller:     NewPoller(transport, cfg.PollAttempts, cfg.PollInterval),
		predictURL: predict,
		fetchURL:   fetch,
	}
}

// NewRequest builds a request using the service's seed and storage target.
func (s *Service) NewRequest(prompt string, image *Image, sampleCount int, aspectRatio string, durationSeconds int) GenerationRequest {
	return GenerationRequest{
		Prompt:          prompt,
		Image:           image,
		StorageTarget:   s.cfg.StorageTarget,
		SampleCount:     sampleCount,
		Seed:            s.cfg.Seed,
		AspectRatio:     aspectRatio,
		DurationSeconds: durationSeconds,
	}
}

// Generate runs one generation to completion. updater may be nil.
func (s *Service) Generate(ctx context.Context, req GenerationRequest, updater ProgressUpdater) *Outcome {
	if err := req.Validate(); err != nil {
		return &Outcome{Status: OutcomeInvalidRequest, Err: err}
	}

	mode := "text"
	if req.Image != nil {
		mode = "image"
	}
	log := logrus.WithFields(logrus.Fields{
		"model":        s.cfg.Model,
		"mode":         mode,
		"sample_count": req.SampleCount,
		"aspect_ratio": req.AspectRatio,
	})

	if updater != nil {
		updater.UpdateProgress("submitting", 10)
	}
	status, err := s.poller.SubmitAndAwait(ctx, s.predictURL, s.fetchURL, Compose(req), updater)
	outcome := &Outcome{}
	if status != nil {
		outcome.Operation = status.Name
		outcome.Attempts = status.Attempts
	}
	if err != nil {
		outcome.Err = err
		outcome.Status = classify(err)
		log.WithError(err).WithField("status", outcome.Status).Warn("Video generation did not complete")
		return outcome
	}

	if status.State == StateFailed {
		outcome.Status = OutcomeProviderFailed
		outcome.ProviderError = status.Error
		outcome.Err = status.Error
		log.WithError(status.Error).Warn("Video generation failed")
		return outcome
	}

	outcome.Response = status.Response
	if updater != nil {
		updater.UpdateProgress("decoding", 90)
	}
	videos, err := DecodeAll(status.Response)
	if err != nil {
		outcome.Status = OutcomeDecodeFailed
		outcome.Err = err
		log.WithError(err).Warn("Unexpected response from video provider")
		return outcome
	}

	outcome.Success = true
	outcome.Status = OutcomeSucceeded
	outcome.Videos = videos
	log.WithField("samples", len(videos)).Info("Video generation succeeded")
	return outcome
}

func classify(err error) OutcomeStatus {
	switch {
	case errors.Is(err, ErrPollTimeout):
		return OutcomeTimedOut
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeTransportFailed
	}
}
