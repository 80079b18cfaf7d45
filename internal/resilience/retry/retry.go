// Package retry provides retry logic with exponential backoff.
// It helps handle transient failures gracefully by automatically retrying
// failed operations with a bounded, deterministic delay schedule.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// SleepFunc waits for the given delay or until the context is done.
// Tests inject a recording implementation to fast-forward virtual time.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// JitterFraction is the fraction of delay to add as random jitter
	// (0.0 to 1.0). Zero keeps the schedule deterministic.
	JitterFraction float64

	// RetryIf decides whether an error is worth retrying. Nil retries
	// every error.
	RetryIf func(error) bool

	// Sleep is the wait implementation. Nil uses a timer honoring ctx.
	Sleep SleepFunc
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.1,
	}
}

// StorageConfig returns configuration for local key-value operations.
// Fast, deterministic pacing: the delay for attempt n is
// min(InitialDelay*2^(n-1), MaxDelay) with no jitter, so callers tracking
// cumulative failures see a predictable schedule.
func StorageConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		JitterFraction: 0,
	}
}

// WebhookConfig returns configuration for webhook notification calls.
func WebhookConfig() Config {
	return Config{
		MaxAttempts:    2,
		InitialDelay:   5 * time.Second,
		MaxDelay:       10 * time.Second,
		JitterFraction: 0.1,
	}
}

// WithBackoff executes fn with retry and exponential backoff. It returns nil
// as soon as fn succeeds. On exhaustion it returns the error from the final
// attempt unmodified, so callers can still match it with errors.Is and
// errors.As.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	return WithBackoffNotify(ctx, cfg, fn, nil)
}

// WithBackoffNotify is WithBackoff with a per-failure callback. onFailure is
// invoked for every failed attempt, including the final one, before any
// backoff wait. A nil callback is allowed.
func WithBackoffNotify(ctx context.Context, cfg Config, fn func() error, onFailure func(attempt int, err error)) error {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if onFailure != nil {
			onFailure(attempt, lastErr)
		}

		if cfg.RetryIf != nil && !cfg.RetryIf(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
	}

	// The original error, not a wrapper: callers downstream inspect
	// error codes attached by the storage backend.
	return lastErr
}

// backoffDelay computes the wait after the given 1-based attempt:
// min(InitialDelay * 2^(attempt-1), MaxDelay), plus optional jitter.
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay || delay < 0 {
			delay = cfg.MaxDelay
			break
		}
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return addJitter(delay, cfg.JitterFraction)
}

// sleepWithContext waits for d, honoring context cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsServerError reports whether the error is a 5xx response.
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// addJitter adds random jitter to a duration to prevent thundering herd.
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- math/rand is fine for backoff jitter; cryptographic
	// randomness is not required.
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}
