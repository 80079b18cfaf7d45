package store

import (
	"context"
	"encoding/json"
	"fmt"

	"notifsync/internal/resilience/circuitbreaker"
)

// CircuitStateStore adapts a ResilientStore into the circuit breaker's
// persistence contract. Breaker state is stored as JSON under a single key,
// so a restart reloads the failure memory the breaker left behind.
type CircuitStateStore struct {
	store *ResilientStore
	key   string
}

// NewCircuitStateStore creates a persistence adapter for the named circuit.
func NewCircuitStateStore(store *ResilientStore, circuitName string) *CircuitStateStore {
	return &CircuitStateStore{
		store: store,
		key:   "circuit:" + circuitName,
	}
}

// Load returns the persisted breaker state, if any. Storage trouble never
// propagates: the resilient store already swallowed and tracked it, and a
// breaker that cannot read its history simply starts closed.
func (c *CircuitStateStore) Load() (circuitbreaker.State, bool, error) {
	data := c.store.Load(context.Background(), c.key)
	if len(data) == 0 {
		return circuitbreaker.State{}, false, nil
	}

	var state circuitbreaker.State
	if err := json.Unmarshal(data, &state); err != nil {
		return circuitbreaker.State{}, false, fmt.Errorf("decode circuit state: %w", err)
	}
	return state, true, nil
}

// Save persists the breaker state. Write failures are swallowed by the
// resilient store and surface through its degraded-mode badge.
func (c *CircuitStateStore) Save(state circuitbreaker.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode circuit state: %w", err)
	}
	c.store.Save(context.Background(), c.key, data)
	return nil
}
