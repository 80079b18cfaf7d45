// Package circuitbreaker provides a persisted circuit breaker that gates
// calls to the remote notification service. It stops a polling client from
// hammering a failing dependency while keeping recovery fast and bounded.
//
// Unlike ratio-based breakers, this one trips on consecutive failures and
// persists its state through an injected StateStore so a process restart
// does not reset failure memory.
package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"
)

// Status is the breaker state machine position.
type Status string

const (
	// StatusClosed indicates normal operation; requests are allowed.
	StatusClosed Status = "closed"
	// StatusOpen indicates requests are rejected locally until the backoff
	// window elapses.
	StatusOpen Status = "open"
	// StatusHalfOpen indicates exactly one probe request is permitted.
	StatusHalfOpen Status = "half_open"
)

// State is a snapshot of the breaker, and also its persisted form.
type State struct {
	Status              Status        `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailure         time.Time     `json:"last_failure,omitempty"`
	CurrentBackoff      time.Duration `json:"current_backoff"`
	ProbeInFlight       bool          `json:"probe_in_flight"`
}

// Decision is the result of asking the breaker whether a request may proceed.
type Decision struct {
	Allowed bool
	Reason  string
	Probing bool
}

// StateStore persists breaker state across restarts. Load reports whether a
// persisted state was found. Implementations must not block on network
// retries for longer than a poll interval.
type StateStore interface {
	Load() (State, bool, error)
	Save(State) error
}

// Config holds the configuration for the circuit breaker.
type Config struct {
	// Name is the breaker name for logging and persistence keying.
	Name string

	// FailureThreshold is the number of consecutive failures that trips the
	// circuit from closed to open.
	FailureThreshold int

	// InitialBackoff is the open-state window after the first trip.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubling of the open-state window.
	MaxBackoff time.Duration
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 3,
		InitialBackoff:   5 * time.Second,
		MaxBackoff:       5 * time.Minute,
	}
}

// RemoteFetchConfig returns configuration tuned for the notification fetch
// endpoint: trip quickly, back off up to five minutes.
func RemoteFetchConfig() Config {
	return Config{
		Name:             "remote-fetch",
		FailureThreshold: 3,
		InitialBackoff:   5 * time.Second,
		MaxBackoff:       5 * time.Minute,
	}
}

// CircuitBreaker is a three-state failure gate with durable state.
type CircuitBreaker struct {
	cfg    Config
	store  StateStore
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
}

// Option customizes a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithStateStore attaches a durable state store. State is loaded at
// construction and saved after every transition.
func WithStateStore(store StateStore) Option {
	return func(cb *CircuitBreaker) { cb.store = store }
}

// WithLogger sets the logger used for state-change events.
func WithLogger(logger *slog.Logger) Option {
	return func(cb *CircuitBreaker) { cb.logger = logger }
}

// WithClock injects the wall-clock function. Tests use this to fast-forward
// through backoff windows.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// New creates a circuit breaker with the given configuration. If a state
// store is attached and holds a previous state, that state is restored so a
// restart does not forget an open circuit.
func New(cfg Config, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		state:  State{Status: StatusClosed},
	}
	for _, opt := range opts {
		opt(cb)
	}

	if cb.store != nil {
		persisted, found, err := cb.store.Load()
		if err != nil {
			cb.logger.Warn("circuit breaker state load failed, starting closed",
				slog.String("circuit", cfg.Name),
				slog.Any("error", err))
		} else if found {
			// A crash mid-probe must not leave the single probe slot taken.
			persisted.ProbeInFlight = false
			if persisted.Status == StatusHalfOpen {
				persisted.Status = StatusOpen
			}
			cb.state = persisted
			cb.logger.Info("circuit breaker state restored",
				slog.String("circuit", cfg.Name),
				slog.String("status", string(persisted.Status)),
				slog.Int("consecutive_failures", persisted.ConsecutiveFailures))
		}
	}

	return cb
}

// Allow reports whether a request may proceed. It performs no I/O: an
// elapsed open window moves the breaker to half-open in memory and hands out
// the single probe slot; the transition is persisted by the subsequent
// RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() Decision {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state.Status {
	case StatusClosed:
		return Decision{Allowed: true}

	case StatusHalfOpen:
		if cb.state.ProbeInFlight {
			return Decision{Allowed: false, Reason: "probe in flight"}
		}
		cb.state.ProbeInFlight = true
		return Decision{Allowed: true, Probing: true}

	case StatusOpen:
		reopenAt := cb.state.LastFailure.Add(cb.state.CurrentBackoff)
		if cb.now().Before(reopenAt) {
			return Decision{
				Allowed: false,
				Reason:  "circuit open until " + reopenAt.Format(time.RFC3339),
			}
		}
		cb.transition(StatusHalfOpen)
		cb.state.ProbeInFlight = true
		return Decision{Allowed: true, Probing: true}
	}

	return Decision{Allowed: false, Reason: "unknown circuit state"}
}

// RecordSuccess resets the breaker to closed and persists. It is idempotent:
// a success while already closed with no failure history is a no-op.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	alreadyClean := cb.state.Status == StatusClosed &&
		cb.state.ConsecutiveFailures == 0 &&
		!cb.state.ProbeInFlight
	if alreadyClean {
		return
	}

	cb.transition(StatusClosed)
	cb.state.ConsecutiveFailures = 0
	cb.state.CurrentBackoff = 0
	cb.state.LastFailure = time.Time{}
	cb.state.ProbeInFlight = false
	cb.persist()
}

// RecordFailure applies the failure transition rules and persists.
//
// A failure reported while the circuit is already open comes from a stale
// in-flight call, not the authorized probe; it must not re-extend the
// backoff window and is dropped.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state.Status {
	case StatusOpen:
		return

	case StatusHalfOpen:
		// Probe failed: double the window, capped, and reopen.
		doubled := cb.state.CurrentBackoff * 2
		if doubled > cb.cfg.MaxBackoff || doubled < cb.state.CurrentBackoff {
			doubled = cb.cfg.MaxBackoff
		}
		cb.state.CurrentBackoff = doubled
		cb.state.LastFailure = cb.now()
		cb.state.ConsecutiveFailures++
		cb.state.ProbeInFlight = false
		cb.transition(StatusOpen)

	case StatusClosed:
		cb.state.ConsecutiveFailures++
		cb.state.LastFailure = cb.now()
		if cb.state.ConsecutiveFailures >= cb.cfg.FailureThreshold {
			cb.state.CurrentBackoff = cb.cfg.InitialBackoff
			if cb.state.CurrentBackoff > cb.cfg.MaxBackoff {
				cb.state.CurrentBackoff = cb.cfg.MaxBackoff
			}
			cb.transition(StatusOpen)
		}
	}

	cb.persist()
}

// Stats returns a snapshot of the breaker state.
func (cb *CircuitBreaker) Stats() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.Status == StatusOpen
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// transition changes the status and logs it. Callers hold the mutex.
func (cb *CircuitBreaker) transition(to Status) {
	from := cb.state.Status
	if from == to {
		return
	}
	cb.state.Status = to
	cb.logger.Warn("circuit breaker state changed",
		slog.String("circuit", cb.cfg.Name),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
}

// persist saves the current state before the mutating call returns, so a
// crash between a network call and a state update cannot leave the breaker
// stuck open or falsely closed. Callers hold the mutex.
func (cb *CircuitBreaker) persist() {
	if cb.store == nil {
		return
	}
	if err := cb.store.Save(cb.state); err != nil {
		cb.logger.Warn("circuit breaker state save failed",
			slog.String("circuit", cb.cfg.Name),
			slog.Any("error", err))
	}
}
