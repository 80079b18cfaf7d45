// Package store provides the persistence layer for the notification-sync
// worker: a minimal key-value interface with pluggable backends, and a
// resilient wrapper that retries transient failures and surfaces sustained
// degradation without crashing callers.
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrKeyNotFound is returned by Get when the key has never been written.
// Backends map their own "missing" signal (sql.ErrNoRows, redis.Nil) to it.
var ErrKeyNotFound = errors.New("key not found")

// KV is the persistent key-value backend contract. Either operation may
// fail transiently (quota limits, connection loss); callers that need
// retry semantics wrap the backend in a ResilientStore.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// MemoryKV is an in-process KV backend. It backs tests and the
// KV_DRIVER=memory configuration, where durability across restarts is
// explicitly not wanted.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns the stored value or ErrKeyNotFound.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a copy of the value.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}
