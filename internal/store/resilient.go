package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"notifsync/internal/resilience/retry"
)

// ErrorStatus is a snapshot of the store's cumulative failure tracking.
// HasActiveBadge is the user-visible degraded-mode signal: it rises once
// ConsecutiveFailures reaches the configured threshold and clears, together
// with the counter, on the next success.
type ErrorStatus struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastErrorTime       time.Time `json:"last_error_time,omitempty"`
	LastErrorMessage    string    `json:"last_error_message,omitempty"`
	HasActiveBadge      bool      `json:"has_active_badge"`
}

// Config holds the resilient store's retry and signaling settings. Retry
// pacing (intra-operation) is deliberately decoupled from ErrorThreshold
// (cross-operation signaling): every failed attempt counts toward the
// threshold, whichever operation it belongs to.
type Config struct {
	// RetryAttempts is the total attempts per operation, including the first.
	RetryAttempts int

	// InitialBackoff is the delay before the first in-operation retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the in-operation retry delay.
	MaxBackoff time.Duration

	// ErrorThreshold is the consecutive-failure count that raises the
	// degraded-mode badge.
	ErrorThreshold int
}

// DefaultConfig returns production defaults for the resilient store.
func DefaultConfig() Config {
	return Config{
		RetryAttempts:  3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		ErrorThreshold: 5,
	}
}

// ResilientStore wraps an unreliable KV backend with bounded retry and
// cumulative failure tracking. Storage failures never escape it as errors:
// reads fall back to an empty default and writes are best-effort, with
// sustained failure surfaced through the degraded-mode badge instead.
type ResilientStore struct {
	kv     KV
	cfg    Config
	logger *slog.Logger
	sleep  retry.SleepFunc

	onDegraded  func(ErrorStatus)
	onRecovered func()

	retriesTotal     prometheus.Counter
	exhaustionsTotal prometheus.Counter

	mu      sync.Mutex
	tracker ErrorStatus
}

// StoreOption customizes a ResilientStore.
type StoreOption func(*ResilientStore)

// WithStoreLogger sets the logger for retry and degradation events.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *ResilientStore) { s.logger = logger }
}

// WithSleep injects the backoff wait. Tests use it to avoid real delays.
func WithSleep(sleep retry.SleepFunc) StoreOption {
	return func(s *ResilientStore) { s.sleep = sleep }
}

// WithDegradedHooks registers callbacks fired when the degraded badge
// rises and when the first subsequent success clears it. Either may be nil.
func WithDegradedHooks(onDegraded func(ErrorStatus), onRecovered func()) StoreOption {
	return func(s *ResilientStore) {
		s.onDegraded = onDegraded
		s.onRecovered = onRecovered
	}
}

// WithRetryMetrics attaches counters for failed attempts and retry
// exhaustions. Either may be nil.
func WithRetryMetrics(retries, exhaustions prometheus.Counter) StoreOption {
	return func(s *ResilientStore) {
		s.retriesTotal = retries
		s.exhaustionsTotal = exhaustions
	}
}

// NewResilientStore wraps the given backend.
func NewResilientStore(kv KV, cfg Config, opts ...StoreOption) *ResilientStore {
	s := &ResilientStore{
		kv:     kv,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads a key. A missing key is not a failure: it returns nil. On
// retry exhaustion it also returns nil rather than propagating, since a
// missing cache is recoverable by the next poll. The failure is tracked.
func (s *ResilientStore) Load(ctx context.Context, key string) []byte {
	var value []byte

	err := s.run(ctx, "load", key, func(opCtx context.Context) error {
		got, err := s.kv.Get(opCtx, key)
		if errors.Is(err, ErrKeyNotFound) {
			value = nil
			return nil
		}
		if err != nil {
			return err
		}
		value = got
		return nil
	})
	if err != nil {
		return nil
	}
	return value
}

// Save writes a key. On retry exhaustion the error is swallowed but
// recorded: data loss is accepted for a cache-like channel, but surfaced
// through the degraded-mode badge.
func (s *ResilientStore) Save(ctx context.Context, key string, value []byte) {
	_ = s.run(ctx, "save", key, func(opCtx context.Context) error {
		return s.kv.Set(opCtx, key, value)
	})
}

// run executes op through the retry engine and keeps the tracker current.
// The retry loop has no external cancellation: in-flight attempts complete
// even if the surrounding poll context is done.
func (s *ResilientStore) run(ctx context.Context, opName, key string, op func(context.Context) error) error {
	opCtx := context.WithoutCancel(ctx)

	cfg := retry.Config{
		MaxAttempts:  s.cfg.RetryAttempts,
		InitialDelay: s.cfg.InitialBackoff,
		MaxDelay:     s.cfg.MaxBackoff,
		Sleep:        s.sleep,
	}

	err := retry.WithBackoffNotify(opCtx, cfg, func() error {
		return op(opCtx)
	}, func(attempt int, attemptErr error) {
		s.recordFailure(attemptErr)
		if s.retriesTotal != nil {
			s.retriesTotal.Inc()
		}
		s.logger.Warn("storage operation failed",
			slog.String("op", opName),
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Any("error", attemptErr))
	})
	if err != nil {
		if s.exhaustionsTotal != nil {
			s.exhaustionsTotal.Inc()
		}
		s.logger.Error("storage operation exhausted retries",
			slog.String("op", opName),
			slog.String("key", key),
			slog.Any("error", err))
		return err
	}

	s.recordSuccess()
	return nil
}

// recordFailure increments the consecutive counter, raising the degraded
// badge exactly once at the threshold.
func (s *ResilientStore) recordFailure(err error) {
	s.mu.Lock()

	s.tracker.ConsecutiveFailures++
	s.tracker.LastErrorTime = time.Now()
	s.tracker.LastErrorMessage = err.Error()

	raise := !s.tracker.HasActiveBadge &&
		s.tracker.ConsecutiveFailures >= s.cfg.ErrorThreshold
	if raise {
		s.tracker.HasActiveBadge = true
	}
	snapshot := s.tracker
	s.mu.Unlock()

	if raise {
		s.logger.Error("storage degraded mode raised",
			slog.Int("consecutive_failures", snapshot.ConsecutiveFailures),
			slog.String("last_error", snapshot.LastErrorMessage))
		if s.onDegraded != nil {
			s.onDegraded(snapshot)
		}
	}
}

// recordSuccess clears the counter and, atomically with it, the badge.
func (s *ResilientStore) recordSuccess() {
	s.mu.Lock()

	hadFailures := s.tracker.ConsecutiveFailures > 0
	hadBadge := s.tracker.HasActiveBadge
	s.tracker.ConsecutiveFailures = 0
	s.tracker.HasActiveBadge = false
	s.mu.Unlock()

	if hadBadge {
		s.logger.Info("storage degraded mode cleared")
		if s.onRecovered != nil {
			s.onRecovered()
		}
	} else if hadFailures {
		s.logger.Info("storage recovered after transient failures")
	}
}

// ErrorStatus returns a snapshot of the failure tracker.
func (s *ResilientStore) ErrorStatus() ErrorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker
}

// HasError reports whether the degraded-mode badge is active.
func (s *ResilientStore) HasError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.HasActiveBadge
}
