package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store owns the AppSettings record. Every other component receives
// snapshots via Settings or Subscribe.
type Store struct {
	backend Backend
	logger  *slog.Logger

	// notifyMu orders updates so subscribers see them in mirror order.
	notifyMu sync.Mutex

	mu          sync.RWMutex
	current     AppSettings
	loaded      bool
	nextSubID   int
	subscribers map[int]func(AppSettings)
}

func NewStore(backend Backend, logger *slog.Logger) *Store {
	if backend == nil {
		backend = UnavailableBackend{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:     backend,
		logger:      logger,
		current:     DefaultSettings(),
		subscribers: make(map[int]func(AppSettings)),
	}
}

// Load reads the persisted record and merges it over the defaults. Storage
// failures are logged and the defaults are used instead.
func (s *Store) Load(ctx context.Context) AppSettings {
	merged := DefaultSettings()

	raw, err := s.backend.Get(ctx, StorageKey)
	switch {
	case err == nil:
		merged, err = Merge(DefaultSettings(), raw)
		if err != nil {
			s.logger.Warn("Persisted settings are unreadable, using defaults", "error", err)
			merged = DefaultSettings()
		}
	case errors.Is(err, ErrNotFound):
		// first run
	case errors.Is(err, ErrUnavailable):
		s.logger.Warn("Settings storage not available, using defaults")
	default:
		s.logger.Warn("Failed to load settings, using defaults", "error", err)
	}

	s.mu.Lock()
	s.current = merged
	s.loaded = true
	s.mu.Unlock()

	return merged
}

// Save replaces the record wholesale. The in-memory copy and subscribers are
// updated before the backend write is attempted. Subscribers must not call
// Save.
func (s *Store) Save(ctx context.Context, next AppSettings) error {
	s.notifyMu.Lock()
	s.mu.Lock()
	s.current = next
	s.loaded = true
	subs := make([]func(AppSettings), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	s.notifyMu.Unlock()

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.backend.Set(ctx, StorageKey, data); err != nil {
		if errors.Is(err, ErrUnavailable) {
			s.logger.Warn("Settings storage not available, change kept in memory only")
			return nil
		}
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	return nil
}

// Reset overwrites the record with the defaults.
func (s *Store) Reset(ctx context.Context) error {
	return s.Save(ctx, DefaultSettings())
}

// Settings returns a snapshot of the in-memory record.
func (s *Store) Settings() AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Loaded reports whether Load or Save has run at least once.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Subscribe registers fn to be called with every saved record. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(AppSettings)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Merge applies a persisted, possibly partial, record over base. Only the top
// level is merged: a persisted "llm" object replaces base.LLM entirely. Null
// or empty language and theme values keep the base value.
func Merge(base AppSettings, raw []byte) (AppSettings, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return base, fmt.Errorf("failed to decode settings: %w", err)
	}

	out := base
	if v, ok := present(fields, "llm"); ok {
		var llm LLMSettings
		if err := json.Unmarshal(v, &llm); err != nil {
			return base, fmt.Errorf("failed to decode llm settings: %w", err)
		}
		out.LLM = llm
	}
	if v, ok := present(fields, "language"); ok {
		var lang string
		if err := json.Unmarshal(v, &lang); err != nil {
			return base, fmt.Errorf("failed to decode language: %w", err)
		}
		if lang != "" {
			out.Language = lang
		}
	}
	if v, ok := present(fields, "theme"); ok {
		var theme Theme
		if err := json.Unmarshal(v, &theme); err != nil {
			return base, fmt.Errorf("failed to decode theme: %w", err)
		}
		if theme != "" {
			out.Theme = theme
		}
	}
	return out, nil
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}
