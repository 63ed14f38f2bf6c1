package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mikeboe/luma/pkg/settings"
)

// PostgresDB wraps the database connection pool
type PostgresDB struct {
	Pool *pgxpool.Pool
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	db.Pool.Close()
}

// Get implements settings.Backend.
func (db *PostgresDB) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := db.Pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return []byte(value), nil
}

// Set implements settings.Backend.
func (db *PostgresDB) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := db.Pool.Exec(ctx, query, key, string(value)); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// RequestLog is one log line recorded while serving a request.
type RequestLog struct {
	ID        int64           `json:"id"`
	RequestID string          `json:"requestId"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func (db *PostgresDB) InsertRequestLog(ctx context.Context, entry RequestLog) error {
	meta := entry.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}
	query := `
		INSERT INTO request_logs (request_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.Pool.Exec(ctx, query, entry.RequestID, entry.Timestamp, entry.Level, entry.Message, []byte(meta))
	return err
}

// RequestLogs returns the log lines of one request, oldest first.
func (db *PostgresDB) RequestLogs(ctx context.Context, requestID string) ([]RequestLog, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, request_id, timestamp, level, message, metadata
		FROM request_logs
		WHERE request_id = $1
		ORDER BY id ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query request logs: %w", err)
	}
	defer rows.Close()

	logs := []RequestLog{}
	for rows.Next() {
		var l RequestLog
		var meta []byte
		if err := rows.Scan(&l.ID, &l.RequestID, &l.Timestamp, &l.Level, &l.Message, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan request log: %w", err)
		}
		l.Metadata = meta
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
