// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

var (
	// ErrPersistence wraps any failure of the backing store to accept or serve a request.
	ErrPersistence = errors.New("persistence error")
	// ErrSessionNotFound is returned by session mutations for an unknown id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStatusConflict is returned when a conditional status update lost a race.
	ErrStatusConflict = errors.New("session status changed concurrently")
)

// EventStore is the append-only, per-session event log.
type EventStore interface {
	// Append stores an event, assigning ID when empty and Seq always.
	// Supplied fields are preserved.
	Append(ctx context.Context, event *domain.Event) (*domain.Event, error)

	// ListBySession returns a session's events ascending by timestamp, ties in append order.
	// An unknown session yields an empty slice.
	ListBySession(ctx context.Context, sessionID string) ([]domain.Event, error)

	// ListBySessionAndType is ListBySession filtered to one event type.
	ListBySessionAndType(ctx context.Context, sessionID string, eventType domain.EventType) ([]domain.Event, error)

	// CountBySessionAndType counts events without loading payloads.
	CountBySessionAndType(ctx context.Context, sessionID string, eventType domain.EventType) (int, error)

	// DeleteBySession removes a session's events. Administrative cleanup only.
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

// SessionStore persists the session aggregate. Every counter mutation is a
// single UPDATE so concurrent writers cannot lose increments.
type SessionStore interface {
	// GetSession returns nil, nil when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// CreateSessionIfAbsent inserts the session unless the id already exists.
	// It never modifies an existing row.
	CreateSessionIfAbsent(ctx context.Context, session *domain.Session) (created bool, err error)

	// AddHint adds penalty to hint_penalty and increments total_hints_used.
	AddHint(ctx context.Context, sessionID string, penalty int, at time.Time) (*domain.Session, error)

	// SetScore overwrites points_earned and marks AI usage.
	SetScore(ctx context.Context, sessionID string, score int, at time.Time) (*domain.Session, error)

	// MarkAIUsed sets ai_pair_programmer_used.
	MarkAIUsed(ctx context.Context, sessionID string, at time.Time) (*domain.Session, error)

	// UpdateStatus moves a session from one status to another. It returns
	// ErrStatusConflict when the current status is no longer from.
	UpdateStatus(ctx context.Context, sessionID string, from, to domain.Status, at time.Time) (*domain.Session, error)

	// TouchSession records activity without changing aggregates.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error

	// ListSessionsByStatus returns sessions in a status, most recently active first.
	ListSessionsByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Session, error)

	// ListIdleSessions returns in-progress sessions with no activity since before.
	ListIdleSessions(ctx context.Context, before time.Time) ([]*domain.Session, error)
}

// Repository is the full persistence surface used by the server.
type Repository interface {
	EventStore
	SessionStore

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
