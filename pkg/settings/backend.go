package settings

import (
	"context"
	"errors"
	"sync"
)

// StorageKey is the single key the settings record lives under.
const StorageKey = "settings"

var (
	// ErrNotFound is returned by a Backend when the key has never been written.
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable is returned when no persistent store exists in this context.
	ErrUnavailable = errors.New("persistent storage not available")
)

// Backend is a generic key-value store. No transactions, no schema.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// MemoryBackend keeps values in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// UnavailableBackend stands in for a context without persistent storage.
type UnavailableBackend struct{}

func (UnavailableBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrUnavailable
}

func (UnavailableBackend) Set(ctx context.Context, key string, value []byte) error {
	return ErrUnavailable
}
