package veo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnexpectedShape is returned when a terminal response lacks the sample structure.
	ErrUnexpectedShape = errors.New("unexpected response shape")
	// ErrMalformedEncoding is returned when an encoded video is not valid double base64.
	ErrMalformedEncoding = errors.New("malformed video encoding")
	// ErrPollTimeout is returned when the attempt budget ran out before the operation finished.
	ErrPollTimeout = errors.New("operation did not finish in time")
)

// TransportError is a failed HTTP exchange with the provider.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("POST %s: %v", e.Endpoint, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("POST %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("POST %s: status %d", e.Endpoint, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError is the error object of a failed operation, as sent by the provider.
// Details are kept verbatim.
type ProviderError struct {
	Code    int               `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Status  string            `json:"status,omitempty"`
	Details []json.RawMessage `json:"details,omitempty"`
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider error")
	if e.Code != 0 {
		fmt.Fprintf(&b, " %d", e.Code)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " (%s)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// DecodeError reports why a terminal response could not be turned into video bytes.
// It matches ErrUnexpectedShape or ErrMalformedEncoding with errors.Is.
type DecodeError struct {
	Kind   error
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Is(target error) bool { return target == e.Kind }

func (e *DecodeError) Unwrap() error { return e.Err }

// PollTimeoutError is returned when an operation stayed pending for every attempt.
type PollTimeoutError struct {
	Operation string
	Attempts  int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("operation %s still pending after %d attempts", e.Operation, e.Attempts)
}

func (e *PollTimeoutError) Is(target error) bool { return target == ErrPollTimeout }

// ValidationError is a request rejected before submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}
