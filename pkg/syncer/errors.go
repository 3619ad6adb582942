package syncer

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOffline is returned when a sync is requested while reachability reports
// no connectivity. The cache and metadata are left untouched.
var ErrOffline = errors.New("offline")

// NetworkError is a transient transport failure. Retryable.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// AuthError means the session is no longer valid. Not retryable by this
// engine; it is surfaced upward so the embedder can re-authenticate.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %v", e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// ValidationError means the server rejected the payload itself. Never
// retryable; the owning mutation parks as Failed without consuming the
// retry ceiling.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// IsRetryable reports whether err is worth another automatic attempt.
// Timeouts count as network failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return false
	}
	return true
}

// classify normalizes remote-client errors. Anything that is not already a
// taxonomy error, including context deadline and cancellation, is treated as
// a transient network failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr *NetworkError
	var authErr *AuthError
	var valErr *ValidationError
	if errors.As(err, &netErr) || errors.As(err, &authErr) || errors.As(err, &valErr) {
		return err
	}
	return &NetworkError{Cause: err}
}
