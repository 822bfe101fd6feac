package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/google/uuid"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name            string
	schema          []string
	numbered        bool // $1, $2 placeholders instead of ?
	serializeWrites bool
}

// SQLStore implements Repository over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	writeMu sync.Mutex // held around writes when the backend allows a single writer
}

var _ Repository = (*SQLStore)(nil)

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema (%s): %w", s.dialect.name, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders for backends that number them.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) lockWrites() func() {
	if !s.dialect.serializeWrites {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Append stores an event and returns it with ID and Seq populated.
func (s *SQLStore) Append(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	if event == nil || event.SessionID == "" || event.Type == "" {
		return nil, fmt.Errorf("append event: session id and type are required: %w", ErrPersistence)
	}
	if event.TimestampMS < 0 {
		return nil, fmt.Errorf("append event: negative timestamp %d: %w", event.TimestampMS, ErrPersistence)
	}

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	payload := string(stored.Payload)
	if payload == "" {
		payload = "{}"
	}

	query := s.rebind(`
		INSERT INTO events (id, session_id, user_id, event_type, timestamp_ms, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`)

	unlock := s.lockWrites()
	defer unlock()

	err := s.db.QueryRowContext(ctx, query,
		stored.ID, stored.SessionID, stored.UserID, string(stored.Type),
		stored.TimestampMS, payload, stored.CreatedAt.UnixMilli(),
	).Scan(&stored.Seq)
	if err != nil {
		return nil, persistErr("append event", err)
	}
	return &stored, nil
}

const eventColumns = `id, seq, session_id, user_id, event_type, timestamp_ms, payload, created_at`

// ListBySession returns a session's events in timeline order.
func (s *SQLStore) ListBySession(ctx context.Context, sessionID string) ([]domain.Event, error) {
	query := s.rebind(`SELECT ` + eventColumns + ` FROM events
		WHERE session_id = ?
		ORDER BY timestamp_ms ASC, seq ASC`)
	return s.queryEvents(ctx, "list events", query, sessionID)
}

// ListBySessionAndType returns one type of a session's events in timeline order.
func (s *SQLStore) ListBySessionAndType(ctx context.Context, sessionID string, eventType domain.EventType) ([]domain.Event, error) {
	query := s.rebind(`SELECT ` + eventColumns + ` FROM events
		WHERE session_id = ? AND event_type = ?
		ORDER BY timestamp_ms ASC, seq ASC`)
	return s.queryEvents(ctx, "list events by type", query, sessionID, string(eventType))
}

func (s *SQLStore) queryEvents(ctx context.Context, op, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close event rows", "error", closeErr)
		}
	}()

	events := []domain.Event{}
	for rows.Next() {
		var (
			ev        domain.Event
			eventType string
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.Seq, &ev.SessionID, &ev.UserID, &eventType,
			&ev.TimestampMS, &payload, &createdAt); err != nil {
			return nil, persistErr("scan event row", err)
		}
		ev.Type = domain.EventType(eventType)
		ev.Payload = payload
		ev.CreatedAt = time.UnixMilli(createdAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return events, nil
}

// CountBySessionAndType counts a session's events of one type.
func (s *SQLStore) CountBySessionAndType(ctx context.Context, sessionID string, eventType domain.EventType) (int, error) {
	query := s.rebind(`SELECT COUNT(*) FROM events WHERE session_id = ? AND event_type = ?`)
	var n int
	if err := s.db.QueryRowContext(ctx, query, sessionID, string(eventType)).Scan(&n); err != nil {
		return 0, persistErr("count events", err)
	}
	return n, nil
}

// DeleteBySession removes every event of a session.
func (s *SQLStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	unlock := s.lockWrites()
	defer unlock()

	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM events WHERE session_id = ?`), sessionID)
	if err != nil {
		return 0, persistErr("delete events", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, persistErr("get rows affected", err)
	}
	return n, nil
}

const sessionColumns = `id, problem_id, user_id, status, started_at, submitted_at, last_activity_at,
	points_earned, hint_penalty, total_hints_used, ai_pair_programmer_used, starter_code`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess                  domain.Session
		status                string
		startedAt, lastActive int64
		submittedAt           sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.ProblemID, &sess.UserID, &status,
		&startedAt, &submittedAt, &lastActive,
		&sess.PointsEarned, &sess.HintPenalty, &sess.TotalHintsUsed, &sess.AIPairProgrammerUsed,
		&sess.StarterCode); err != nil {
		return nil, err
	}
	sess.Status = domain.Status(status)
	sess.StartedAt = time.UnixMilli(startedAt)
	sess.LastActivityAt = time.UnixMilli(lastActive)
	if submittedAt.Valid {
		ts := time.UnixMilli(submittedAt.Int64)
		sess.SubmittedAt = &ts
	}
	return &sess, nil
}

// GetSession retrieves a session by id.
func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get session", err)
	}
	return sess, nil
}

// CreateSessionIfAbsent inserts a session row; an existing row is left untouched.
func (s *SQLStore) CreateSessionIfAbsent(ctx context.Context, sess *domain.Session) (bool, error) {
	query := s.rebind(`
		INSERT INTO sessions (id, problem_id, user_id, status, started_at, last_activity_at,
			points_earned, hint_penalty, total_hints_used, ai_pair_programmer_used, starter_code)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	unlock := s.lockWrites()
	defer unlock()

	result, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.ProblemID, sess.UserID, string(sess.Status),
		sess.StartedAt.UnixMilli(), sess.StartedAt.UnixMilli(), false, sess.StarterCode,
	)
	if err != nil {
		return false, persistErr("create session", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, persistErr("get rows affected", err)
	}
	return n == 1, nil
}

// updateReturning runs a single-row UPDATE ... RETURNING on sessions.
func (s *SQLStore) updateReturning(ctx context.Context, op, set string, args ...any) (*domain.Session, error) {
	query := s.rebind(`UPDATE sessions SET ` + set + ` WHERE id = ? RETURNING ` + sessionColumns)

	unlock := s.lockWrites()
	defer unlock()

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	if err != nil {
		return nil, persistErr(op, err)
	}
	return sess, nil
}

// AddHint charges a hint penalty in one statement.
func (s *SQLStore) AddHint(ctx context.Context, sessionID string, penalty int, at time.Time) (*domain.Session, error) {
	return s.updateReturning(ctx, "add hint",
		`hint_penalty = hint_penalty + ?, total_hints_used = total_hints_used + 1, last_activity_at = ?`,
		penalty, at.UnixMilli(), sessionID)
}

// SetScore overwrites the earned score.
func (s *SQLStore) SetScore(ctx context.Context, sessionID string, score int, at time.Time) (*domain.Session, error) {
	return s.updateReturning(ctx, "set score",
		`points_earned = ?, ai_pair_programmer_used = ?, last_activity_at = ?`,
		score, true, at.UnixMilli(), sessionID)
}

// MarkAIUsed flags the session as having used an AI feature.
func (s *SQLStore) MarkAIUsed(ctx context.Context, sessionID string, at time.Time) (*domain.Session, error) {
	return s.updateReturning(ctx, "mark ai used",
		`ai_pair_programmer_used = ?, last_activity_at = ?`,
		true, at.UnixMilli(), sessionID)
}

// UpdateStatus performs a compare-and-set on status. submitted_at is stamped
// the first time a session leaves in_progress.
func (s *SQLStore) UpdateStatus(ctx context.Context, sessionID string, from, to domain.Status, at time.Time) (*domain.Session, error) {
	var submittedAt any
	if from == domain.StatusInProgress {
		submittedAt = at.UnixMilli()
	}

	query := s.rebind(`UPDATE sessions
		SET status = ?, submitted_at = COALESCE(submitted_at, ?), last_activity_at = ?
		WHERE id = ? AND status = ?
		RETURNING ` + sessionColumns)

	unlock := s.lockWrites()
	sess, err := scanSession(s.db.QueryRowContext(ctx, query,
		string(to), submittedAt, at.UnixMilli(), sessionID, string(from)))
	unlock()

	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistErr("update status", err)
	}

	current, getErr := s.GetSession(ctx, sessionID)
	if getErr != nil {
		return nil, getErr
	}
	if current == nil {
		return nil, fmt.Errorf("update status: %w", ErrSessionNotFound)
	}
	return nil, fmt.Errorf("update status %s -> %s (now %s): %w", from, to, current.Status, ErrStatusConflict)
}

// TouchSession bumps last_activity_at.
func (s *SQLStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	unlock := s.lockWrites()
	defer unlock()

	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE sessions SET last_activity_at = ? WHERE id = ? AND last_activity_at < ?`),
		at.UnixMilli(), sessionID, at.UnixMilli())
	if err != nil {
		return persistErr("touch session", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("get rows affected", err)
	}
	if rows == 0 {
		slog.Debug("TouchSession affected 0 rows", "session_id", sessionID)
	}
	return nil
}

// ListSessionsByStatus returns up to limit sessions in a status.
func (s *SQLStore) ListSessionsByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM sessions
		WHERE status = ?
		ORDER BY last_activity_at DESC
		LIMIT ?`)
	return s.querySessions(ctx, "list sessions", query, string(status), limit)
}

// ListIdleSessions returns in-progress sessions inactive since before.
func (s *SQLStore) ListIdleSessions(ctx context.Context, before time.Time) ([]*domain.Session, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM sessions
		WHERE status = ? AND last_activity_at < ?`)
	return s.querySessions(ctx, "list idle sessions", query, string(domain.StatusInProgress), before.UnixMilli())
}

func (s *SQLStore) querySessions(ctx context.Context, op, query string, args ...any) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, persistErr("scan session row", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return sessions, nil
}
