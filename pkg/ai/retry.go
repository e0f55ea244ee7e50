package ai

import (
	"time"
)

// Policy decides whether a failed AI call is retried and how long to wait
// before the next attempt. The delay grows linearly with the attempt number,
// so back-to-back 429s back off progressively harder.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// Sleep is replaceable in tests. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or exhausts
// the retry budget. Total attempts are MaxRetries + 1. Exhaustion surfaces as
// a *RateLimitError carrying the attempt count.
func (p Policy) Do(operation string, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}

		if attempt > p.MaxRetries {
			return &RateLimitError{Operation: operation, Attempts: attempt}
		}

		sleep(p.BaseDelay * time.Duration(attempt))
	}
}
