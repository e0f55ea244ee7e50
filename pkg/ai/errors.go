package ai

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is an upstream AI failure carrying the HTTP status that caused it.
// A status of 429 is retryable; every other status fails fast.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai %s failed: status=%d: %s", e.Operation, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// RateLimitError indicates the upstream kept returning 429 until the retry
// budget was exhausted. Attempts counts every call made, including the first.
type RateLimitError struct {
	Operation string
	Attempts  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ai %s rate limit exhausted after %d attempt(s)", e.Operation, e.Attempts)
}

// IsRetryable reports whether the error is a rate-limited upstream response
// that may succeed on a later attempt.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
