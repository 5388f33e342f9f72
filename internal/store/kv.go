// internal/store/kv.go
//
// String-keyed JSON blob persistence port plus the in-memory implementation.
// The engine, stats, and daily journal all speak this interface; callers own
// key naming (e.g. "gameStats_daily", "dailyGameState").
//
// Characteristics of the memory implementation:
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts; used in tests and for guests
//     before their first write lands in SQLite.

package store

import (
	"context"
	"sync"
)

// KV defines the persistence port for string-keyed JSON blobs.
// Implementations may be backed by memory (this file), SQLite (sqlite.go),
// Redis, etc.
type KV interface {
	// Get retrieves a value. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put persists or overwrites a value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// memory is an in-memory map-based KV implementation.
type memory struct {
	mu   sync.RWMutex      // guards data
	data map[string][]byte // keyed blobs
}

// NewMemory constructs a new in-memory KV.
func NewMemory() KV {
	return &memory{data: make(map[string][]byte)}
}

// Get looks up a key.
func (m *memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put adds or overwrites the value for key.
func (m *memory) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// Delete removes key if present.
func (m *memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
