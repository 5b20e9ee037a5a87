package veo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rossigee/veo-video-proxy/internal/retry"
)

// Generation usually takes about two minutes; 30 polls 10 seconds apart leave
// plenty of margin.
const (
	DefaultPollAttempts = 30
	DefaultPollInterval = 10 * time.Second
)

var errStillPending = errors.New("operation pending")

// ProgressUpdater receives progress notifications while a job runs.
type ProgressUpdater interface {
	UpdateProgress(stage string, percent float64)
}

// Poller submits a predict request and waits for the resulting operation.
type Poller struct {
	transport Transport
	retry     retry.Config
}

// NewPoller creates a poller that checks the operation up to attempts times,
// sleeping interval between checks.
func NewPoller(transport Transport, attempts int, interval time.Duration) *Poller {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval < 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		transport: transport,
		retry:     retry.Fixed(attempts, interval),
	}
}

// Submit posts payload to the predict endpoint and returns the operation name.
func (p *Poller) Submit(ctx context.Context, predictURL string, payload PredictRequest) (string, error) {
	var resp submitResponse
	if err := p.transport.Post(ctx, predictURL, payload, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", &TransportError{Endpoint: predictURL, Err: errors.New("response has no operation name")}
	}
	return resp.Name, nil
}

// Await polls fetchURL for the named operation until it is done or the attempt
// budget runs out. Transport failures end polling immediately. Running out of
// attempts yields *PollTimeoutError.
func (p *Poller) Await(ctx context.Context, fetchURL, name string, updater ProgressUpdater) (*OperationStatus, error) {
	status := &OperationStatus{Name: name, State: StatePending}
	log := logrus.WithField("operation", name)

	err := retry.WithRetry(ctx, p.retry, func() error {
		status.Attempts++

		var op Operation
		if err := p.transport.Post(ctx, fetchURL, fetchRequest{OperationName: name}, &op); err != nil {
			return retry.Stop(err)
		}
		if !op.Done {
			log.WithField("attempt", status.Attempts).Debug("Operation still running")
			if updater != nil {
				updater.UpdateProgress("polling", pollPercent(status.Attempts, p.retry.MaxAttempts))
			}
			return errStillPending
		}

		if op.Error != nil {
			status.State = StateFailed
			status.Error = op.Error
		} else {
			status.State = StateDone
			status.Response = op.Response
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errStillPending) {
			return status, &PollTimeoutError{Operation: name, Attempts: status.Attempts}
		}
		return status, err
	}

	log.WithFields(logrus.Fields{
		"state":    status.State.String(),
		"attempts": status.Attempts,
	}).Info("Operation finished")
	return status, nil
}

// SubmitAndAwait submits payload and polls the resulting operation to a terminal state.
func (p *Poller) SubmitAndAwait(ctx context.Context, predictURL, fetchURL string, payload PredictRequest, updater ProgressUpdater) (*OperationStatus, error) {
	name, err := p.Submit(ctx, predictURL, payload)
	if err != nil {
		return nil, fmt.Errorf("submit generation: %w", err)
	}
	logrus.WithField("operation", name).Info("Submitted video generation")

	if updater != nil {
		updater.UpdateProgress("polling", pollPercent(0, p.retry.MaxAttempts))
	}
	return p.Await(ctx, fetchURL, name, updater)
}

// pollPercent maps poll progress onto the 20-90% band of the job.
func pollPercent(attempt, maxAttempts int) float64 {
	if maxAttempts <= 0 {
		return 20
	}
	return 20 + 70*float64(attempt)/float64(maxAttempts)
}
