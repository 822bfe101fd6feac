// Package registry owns the session lifecycle and is the only place where
// score, hint, and status mutations land.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/metrics"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/shared"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/store"
)

var (
	// ErrSessionNotFound is returned for mutations on an unknown session.
	ErrSessionNotFound = store.ErrSessionNotFound
	// ErrInvalidTransition is returned when a status change would move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidScore is returned for an evaluation score outside 0..100.
	ErrInvalidScore = errors.New("score out of range")
	// ErrSessionMismatch is returned when an id is reopened for a different user or problem.
	ErrSessionMismatch = errors.New("session belongs to a different user or problem")
	// ErrInvalidArgument is returned for missing identifiers.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Registry serves session lifecycle operations. Failures are always returned
// to the caller; transient storage conflicts are retried first.
type Registry struct {
	store   store.SessionStore
	retry   shared.RetryPolicy
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRetryPolicy overrides the conflict retry policy.
func WithRetryPolicy(p shared.RetryPolicy) Option {
	return func(r *Registry) { r.retry = p }
}

// WithMetrics records mutation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates a registry over s.
func New(s store.SessionStore, opts ...Option) *Registry {
	r := &Registry{
		store: s,
		retry: shared.DefaultRetryPolicy(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates the session if absent and returns the stored row. Reopening
// an existing session leaves its score, hints, penalty, and start time as they were.
// starterCode is stored only when the session is created.
func (r *Registry) Open(ctx context.Context, sessionID, userID, problemID, starterCode string) (*domain.Session, error) {
	if sessionID == "" || userID == "" || problemID == "" {
		return nil, fmt.Errorf("open session: %w: session, user and problem ids are required", ErrInvalidArgument)
	}

	var sess *domain.Session
	err := shared.Retry(ctx, r.retry, "open session", func(ctx context.Context) error {
		created, err := r.store.CreateSessionIfAbsent(ctx, &domain.Session{
			ID:          sessionID,
			ProblemID:   problemID,
			UserID:      userID,
			Status:      domain.StatusInProgress,
			StartedAt:   r.now(),
			StarterCode: starterCode,
		})
		if err != nil {
			return err
		}
		sess, err = r.store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("session %s missing after create: %w", sessionID, store.ErrPersistence)
		}
		if created {
			slog.Info("Session opened", "session_id", sessionID, "user_id", userID, "problem_id", problemID)
		} else {
			slog.Debug("Session resumed", "session_id", sessionID, "status", sess.Status)
		}
		return nil
	})
	r.metrics.Mutation("open", err)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", sessionID, err)
	}

	if sess.UserID != userID || sess.ProblemID != problemID {
		return nil, fmt.Errorf("open session %s: %w", sessionID, ErrSessionMismatch)
	}
	return sess, nil
}

// Get returns the session or ErrSessionNotFound.
func (r *Registry) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, ErrSessionNotFound)
	}
	return sess, nil
}

// ApplyHint charges the penalty for level and increments the hint count.
// The increment happens in one storage statement so charges accumulate.
func (r *Registry) ApplyHint(ctx context.Context, sessionID string, level int) (*domain.Session, error) {
	penalty, err := domain.HintPenalty(level)
	if err != nil {
		return nil, fmt.Errorf("apply hint: %w", err)
	}

	sess, err := r.mutate(ctx, "apply_hint", func(ctx context.Context) (*domain.Session, error) {
		return r.store.AddHint(ctx, sessionID, penalty, r.now())
	})
	if err != nil {
		return nil, fmt.Errorf("apply hint to %s: %w", sessionID, err)
	}

	slog.Info("Hint penalty applied",
		"session_id", sessionID,
		"level", level,
		"penalty", penalty,
		"hint_penalty", sess.HintPenalty,
		"total_hints_used", sess.TotalHintsUsed,
	)
	return sess, nil
}

// ApplyEvaluation overwrites the session score and marks AI usage.
func (r *Registry) ApplyEvaluation(ctx context.Context, sessionID string, score int) (*domain.Session, error) {
	if score < 0 || score > domain.MaxScore {
		return nil, fmt.Errorf("apply evaluation: %w: %d", ErrInvalidScore, score)
	}

	sess, err := r.mutate(ctx, "apply_evaluation", func(ctx context.Context) (*domain.Session, error) {
		return r.store.SetScore(ctx, sessionID, score, r.now())
	})
	if err != nil {
		return nil, fmt.Errorf("apply evaluation to %s: %w", sessionID, err)
	}

	slog.Info("Evaluation applied", "session_id", sessionID, "points_earned", sess.PointsEarned)
	return sess, nil
}

// MarkAIUsed flags the session after a pair-programmer request.
func (r *Registry) MarkAIUsed(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := r.mutate(ctx, "mark_ai_used", func(ctx context.Context) (*domain.Session, error) {
		return r.store.MarkAIUsed(ctx, sessionID, r.now())
	})
	if err != nil {
		return nil, fmt.Errorf("mark ai used on %s: %w", sessionID, err)
	}
	return sess, nil
}

// Finalize moves the session forward to status. Finalizing to the current
// status is a no-op; moving backwards returns ErrInvalidTransition.
func (r *Registry) Finalize(ctx context.Context, sessionID string, status domain.Status) (*domain.Session, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("finalize %s: %w: unknown status %q", sessionID, ErrInvalidTransition, status)
	}

	sess, err := r.mutate(ctx, "finalize", func(ctx context.Context) (*domain.Session, error) {
		current, err := r.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrSessionNotFound
		}
		if current.Status == status {
			return current, nil
		}
		if !current.Status.CanTransitionTo(status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
		}
		return r.store.UpdateStatus(ctx, sessionID, current.Status, status, r.now())
	})
	if err != nil {
		return nil, fmt.Errorf("finalize %s: %w", sessionID, err)
	}

	slog.Info("Session finalized", "session_id", sessionID, "status", sess.Status)
	return sess, nil
}

// Touch records activity on the session. Failures are logged only; activity
// stamps are advisory.
func (r *Registry) Touch(ctx context.Context, sessionID string) {
	if err := r.store.TouchSession(ctx, sessionID, r.now()); err != nil {
		slog.Warn("Failed to record session activity", "session_id", sessionID, "error", err)
	}
}

// ListActive returns in-progress sessions for the dashboard.
func (r *Registry) ListActive(ctx context.Context, limit int) ([]*domain.Session, error) {
	sessions, err := r.store.ListSessionsByStatus(ctx, domain.StatusInProgress, limit)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// mutate retries fn on transient conflicts. A status compare-and-set that
// lost a race is also retried, since fn re-reads the current status.
func (r *Registry) mutate(ctx context.Context, op string, fn func(context.Context) (*domain.Session, error)) (*domain.Session, error) {
	var sess *domain.Session
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = shared.Retry(ctx, r.retry, op, func(ctx context.Context) error {
			var opErr error
			sess, opErr = fn(ctx)
			return opErr
		})
		if !errors.Is(err, store.ErrStatusConflict) {
			break
		}
	}
	r.metrics.Mutation(op, err)
	return sess, err
}
