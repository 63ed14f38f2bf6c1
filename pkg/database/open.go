package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/luma/pkg/config"
	"github.com/mikeboe/luma/pkg/settings"
)

// Backends is the storage selected by the configuration. Postgres is nil
// unless the postgres backend is in use.
type Backends struct {
	Settings settings.Backend
	Postgres *PostgresDB
	closers  []func()
}

func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open connects the settings backend named by cfg.SettingsBackend.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	switch cfg.SettingsBackend {
	case config.BackendMemory:
		b.Settings = settings.NewMemoryBackend()
	case config.BackendNone:
		b.Settings = settings.UnavailableBackend{}
	case config.BackendSQLite:
		store, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.Settings = store
		b.closers = append(b.closers, func() { _ = store.Close() })
	case config.BackendPostgres:
		db, err := NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		b.Settings = db
		b.Postgres = db
		b.closers = append(b.closers, db.Close)
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.SettingsBackend)
	}

	slog.Info("Settings backend ready", "backend", cfg.SettingsBackend)
	return b, nil
}
