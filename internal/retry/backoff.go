// Package retry provides a bounded attempt loop with configurable delays between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int
	Delays      []time.Duration
}

// Fixed returns a Config that makes up to attempts calls with the same delay between each.
func Fixed(attempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts: attempts,
		Delays:      []time.Duration{delay},
	}
}

// stopError marks an error that must end the loop immediately.
type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }

func (e *stopError) Unwrap() error { return e.err }

// Stop wraps err so that WithRetry returns it without further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// WithRetry executes fn until it succeeds, returns a Stop error, or MaxAttempts is reached.
// Delays apply between attempts, never before the first one; the last delay is reused
// when there are more attempts than delays.
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if delay := delayFor(cfg.Delays, attempt); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("retry cancelled: %w", ctx.Err())
				}
			} else if err := ctx.Err(); err != nil {
				return fmt.Errorf("retry cancelled: %w", err)
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		lastErr = err
	}

	return &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}

func delayFor(delays []time.Duration, attempt int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}
