package ai

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyRetriesUntilExhausted(t *testing.T) {
	attempts := 0
	policy := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	err := policy.Do("grading", func() error {
		attempts++
		return &APIError{Operation: "grading", StatusCode: 429, Message: "slow down"}
	})

	require.Equal(t, 4, attempts, "maxRetries=3 means 4 total attempts")

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	require.Equal(t, 4, rateErr.Attempts)
	require.Equal(t, "grading", rateErr.Operation)
}

func TestPolicySucceedsAfterSingleRateLimit(t *testing.T) {
	attempts := 0
	policy := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	err := policy.Do("grading", func() error {
		attempts++
		if attempts == 1 {
			return &APIError{Operation: "grading", StatusCode: 429}
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestPolicyFailsFastOnNonRetryableStatus(t *testing.T) {
	for _, status := range []int{400, 401, 403, 500, 503} {
		attempts := 0
		policy := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

		err := policy.Do("grading", func() error {
			attempts++
			return &APIError{Operation: "grading", StatusCode: status, Message: "boom"}
		})

		require.Equal(t, 1, attempts, "status %d must not be retried", status)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, status, apiErr.StatusCode)
	}
}

func TestPolicyDelayGrowsLinearly(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		Sleep:      func(d time.Duration) { delays = append(delays, d) },
	}

	_ = policy.Do("grading", func() error {
		return &APIError{Operation: "grading", StatusCode: 429}
	})

	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}, delays)
}

func TestPolicyPassesThroughNonAPIErrors(t *testing.T) {
	sentinel := errors.New("context canceled")
	attempts := 0
	policy := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	err := policy.Do("grading", func() error {
		attempts++
		return sentinel
	})

	require.Equal(t, 1, attempts)
	require.ErrorIs(t, err, sentinel)
}

func TestZeroMaxRetriesMeansSingleAttempt(t *testing.T) {
	attempts := 0
	policy := Policy{MaxRetries: 0, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}

	err := policy.Do("grading", func() error {
		attempts++
		return &APIError{Operation: "grading", StatusCode: 429}
	})

	require.Equal(t, 1, attempts)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	require.Equal(t, 1, rateErr.Attempts)
}
