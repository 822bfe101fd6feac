package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		problem_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at BIGINT NOT NULL,
		submitted_at BIGINT,
		last_activity_at BIGINT NOT NULL,
		points_earned INTEGER NOT NULL DEFAULT 0,
		hint_penalty INTEGER NOT NULL DEFAULT 0,
		total_hints_used INTEGER NOT NULL DEFAULT 0,
		ai_pair_programmer_used BOOLEAN NOT NULL DEFAULT FALSE,
		starter_code TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status_activity ON sessions(status, last_activity_at)`,
	`CREATE TABLE IF NOT EXISTS events (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp_ms BIGINT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_timeline ON events(session_id, timestamp_ms, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(session_id, event_type)`,
}

// NewPostgres creates a Postgres-backed repository from a connection string.
func NewPostgres(ctx context.Context, connStr string) (*SQLStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping database: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newSQLStore(db, dialect{
		name:     "postgres",
		schema:   postgresSchema,
		numbered: true,
	})
}
