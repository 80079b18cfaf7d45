// Package sync implements the notification sync poller. Each poll consults
// the circuit breaker, fetches the remote notification state under a bounded
// timeout, and reconciles it against the cached set using content-addressed
// versioning so that only real change reaches storage and downstream
// consumers.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"notifsync/internal/domain/entity"
	"notifsync/internal/infra/remote"
	"notifsync/internal/resilience/circuitbreaker"
	"notifsync/internal/store"
)

// RemoteClient is the remote notification API the poller consumes.
type RemoteClient interface {
	Fetch(ctx context.Context) ([]entity.NotificationRecord, error)
	MarkRead(ctx context.Context, folder string) error
	MarkAllRead(ctx context.Context) error
}

// Breaker gates remote calls and tracks their outcomes.
type Breaker interface {
	Allow() circuitbreaker.Decision
	RecordSuccess()
	RecordFailure()
	Stats() circuitbreaker.State
}

// CacheStore persists the notification set between runs. It follows the
// resilient store contract: Load falls back to nil and Save never fails.
type CacheStore interface {
	Load(ctx context.Context, key string) []byte
	Save(ctx context.Context, key string, value []byte)
	ErrorStatus() store.ErrorStatus
	HasError() bool
}

// Outcome classifies a completed poll.
type Outcome string

const (
	// OutcomeSkipped means the breaker disallowed the poll; no network call
	// was made.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means the fetch failed or its body was malformed; the
	// cached set is untouched.
	OutcomeFailed Outcome = "failed"

	// OutcomeUnchanged means the fetch succeeded but the computed version
	// matched the cached one; nothing was written or broadcast.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeChanged means the cached set was replaced, persisted, and
	// broadcast to change hooks.
	OutcomeChanged Outcome = "changed"
)

// PollResult reports how a poll ended. Poll always resolves; failure is
// signaled here and through breaker stats, never as a returned error.
type PollResult struct {
	Outcome Outcome
	Version string
	Err     error
}

// Config holds the poller's settings.
type Config struct {
	// FetchTimeout bounds the remote fetch within one poll.
	FetchTimeout time.Duration

	// CacheKey is the storage key for the persisted notification set.
	CacheKey string
}

// DefaultConfig returns production defaults for the poller.
func DefaultConfig() Config {
	return Config{
		FetchTimeout: 10 * time.Second,
		CacheKey:     "sync:cache",
	}
}

// ChangeHook receives the new notification set after a real change has been
// committed. Hooks run outside the poller's lock and must not block for long.
type ChangeHook func(entity.NotificationSet)

// Service is the sync poller. A single mutex serializes Poll, MarkRead, and
// MarkAllRead: re-entrant triggers (a manual refresh racing a scheduled poll)
// queue up rather than interleave, and the last successful
// parse-compare-persist sequence wins.
type Service struct {
	remote  RemoteClient
	breaker Breaker
	cache   CacheStore
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	current entity.NotificationSet
	hooks   []ChangeHook
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the poller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New builds a poller and seeds its in-memory set from the cache store. A
// missing or corrupt cache entry seeds an empty set; the next changed poll
// rewrites it. The version is recomputed from the cached records rather than
// trusted from disk.
func New(ctx context.Context, remoteClient RemoteClient, breaker Breaker, cache CacheStore, cfg Config, opts ...Option) *Service {
	s := &Service{
		remote:  remoteClient,
		breaker: breaker,
		cache:   cache,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if data := cache.Load(ctx, cfg.CacheKey); len(data) > 0 {
		var cached entity.NotificationSet
		if err := json.Unmarshal(data, &cached); err != nil {
			s.logger.Warn("cached notification set is corrupt, starting empty",
				slog.String("key", cfg.CacheKey),
				slog.Any("error", err))
		} else {
			s.current = entity.NewNotificationSet(cached.Records)
			s.logger.Info("notification set restored from cache",
				slog.Int("records", len(s.current.Records)),
				slog.String("version", s.current.Version))
		}
	}

	return s
}

// OnChange registers a hook fired after each committed change.
func (s *Service) OnChange(hook ChangeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Poll runs one fetch-and-reconcile cycle. It consults the breaker first,
// fetches under the configured timeout, classifies the result, and commits
// the new set only when its version differs from the cached one.
func (s *Service) Poll(ctx context.Context) PollResult {
	s.mu.Lock()
	result, hooks, snapshot := s.pollLocked(ctx)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(snapshot)
	}
	return result
}

func (s *Service) pollLocked(ctx context.Context) (PollResult, []ChangeHook, entity.NotificationSet) {
	decision := s.breaker.Allow()
	if !decision.Allowed {
		s.logger.Debug("poll skipped by circuit breaker",
			slog.String("reason", decision.Reason))
		return PollResult{Outcome: OutcomeSkipped, Version: s.current.Version}, nil, entity.NotificationSet{}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	records, err := s.remote.Fetch(fetchCtx)
	cancel()

	if err != nil {
		if errors.Is(err, remote.ErrMalformedResponse) {
			// The transport worked; only the payload was bad. Counting this
			// against the breaker would back off a healthy service.
			s.breaker.RecordSuccess()
			s.logger.Warn("poll received malformed response",
				slog.Any("error", err))
			return PollResult{Outcome: OutcomeFailed, Version: s.current.Version, Err: err}, nil, entity.NotificationSet{}
		}
		s.breaker.RecordFailure()
		s.logger.Warn("poll fetch failed",
			slog.Bool("probe", decision.Probing),
			slog.Any("error", err))
		return PollResult{Outcome: OutcomeFailed, Version: s.current.Version, Err: err}, nil, entity.NotificationSet{}
	}

	s.breaker.RecordSuccess()

	next := entity.NewNotificationSet(records)
	if next.Version == s.current.Version {
		s.logger.Debug("poll found no change",
			slog.String("version", next.Version))
		return PollResult{Outcome: OutcomeUnchanged, Version: next.Version}, nil, entity.NotificationSet{}
	}

	hooks, snapshot := s.commitLocked(ctx, next)
	s.logger.Info("notification set changed",
		slog.Int("records", len(next.Records)),
		slog.String("version", next.Version))
	return PollResult{Outcome: OutcomeChanged, Version: next.Version}, hooks, snapshot
}

// MarkRead marks every notification in folder as read: the remote mutation
// runs first, and only on its success are the records removed locally,
// persisted, and broadcast. On remote failure the local state is untouched
// and the error is returned.
func (s *Service) MarkRead(ctx context.Context, folder string) error {
	s.mu.Lock()

	if err := s.remote.MarkRead(ctx, folder); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("mark folder read: %w", err)
	}

	hooks, snapshot := s.commitIfChangedLocked(ctx, s.current.WithoutFolder(folder))
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(snapshot)
	}
	return nil
}

// MarkAllRead marks every notification as read, with the same
// remote-first-then-local ordering as MarkRead.
func (s *Service) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()

	if err := s.remote.MarkAllRead(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("mark all read: %w", err)
	}

	hooks, snapshot := s.commitIfChangedLocked(ctx, entity.NewNotificationSet(nil))
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(snapshot)
	}
	return nil
}

// commitIfChangedLocked commits next only when its version differs from the
// current one, returning no hooks otherwise.
func (s *Service) commitIfChangedLocked(ctx context.Context, next entity.NotificationSet) ([]ChangeHook, entity.NotificationSet) {
	if next.Version == s.current.Version {
		return nil, entity.NotificationSet{}
	}
	return s.commitLocked(ctx, next)
}

// commitLocked replaces the in-memory set and persists it, returning the
// registered hooks and a snapshot so the caller can fire them after
// releasing the lock.
func (s *Service) commitLocked(ctx context.Context, next entity.NotificationSet) ([]ChangeHook, entity.NotificationSet) {
	s.current = next

	data, err := json.Marshal(next)
	if err != nil {
		s.logger.Error("marshal notification set", slog.Any("error", err))
	} else {
		s.cache.Save(ctx, s.cfg.CacheKey, data)
	}

	hooks := make([]ChangeHook, len(s.hooks))
	copy(hooks, s.hooks)
	return hooks, next
}

// Notifications returns a copy of the cached records.
func (s *Service) Notifications() []entity.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]entity.NotificationRecord, len(s.current.Records))
	copy(records, s.current.Records)
	return records
}

// Version returns the version of the cached set.
func (s *Service) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Version
}

// BreakerStats returns a snapshot of the circuit breaker state.
func (s *Service) BreakerStats() circuitbreaker.State {
	return s.breaker.Stats()
}

// ErrorStatus returns the storage failure tracker snapshot.
func (s *Service) ErrorStatus() store.ErrorStatus {
	return s.cache.ErrorStatus()
}

// HasError reports whether storage is in degraded mode.
func (s *Service) HasError() bool {
	return s.cache.HasError()
}
