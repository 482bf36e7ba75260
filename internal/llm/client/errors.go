package llmclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrInvalidRequest = errors.New("invalid inference request")
	ErrEmptyResponse  = errors.New("empty completion from provider")
)

// UpstreamError reports a failed provider call. Status is the HTTP status when
// the provider answered, or 0 for transport and decoding failures.
type UpstreamError struct {
	Provider   string
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.Status, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s API error: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether a later identical call could succeed.
func (e *UpstreamError) Retryable() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsRetryable classifies an error returned by a ChatClient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pErr *PermanentError
	if errors.As(err, &pErr) {
		return false
	}
	if errors.Is(err, ErrInvalidRequest) {
		return false
	}
	var uErr *UpstreamError
	if errors.As(err, &uErr) {
		return uErr.Retryable()
	}
	return false
}
