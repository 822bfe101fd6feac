package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/shared"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/store"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *store.SQLStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, opts...), s
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Open(ctx, "S1", "u1", "p1", "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if first.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", first.Status)
	}

	if _, err := reg.ApplyHint(ctx, "S1", 1); err != nil {
		t.Fatalf("ApplyHint() error = %v", err)
	}
	if _, err := reg.ApplyEvaluation(ctx, "S1", 60); err != nil {
		t.Fatalf("ApplyEvaluation() error = %v", err)
	}

	again, err := reg.Open(ctx, "S1", "u1", "p1", "")
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if again.HintPenalty != 5 || again.TotalHintsUsed != 1 || again.PointsEarned != 60 {
		t.Fatalf("reopen reset aggregates: %+v", again)
	}
	if !again.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("started_at moved from %v to %v", first.StartedAt, again.StartedAt)
	}
}

func TestOpenConcurrentDuplicates(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Open(ctx, "S1", "u1", "p1", ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Open() error = %v", err)
	}
}

func TestOpenRejectsMismatchAndMissingIDs(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Open(ctx, "S1", "u1", "p1", ""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := reg.Open(ctx, "S1", "intruder", "p1", ""); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
	if _, err := reg.Open(ctx, "", "u1", "p1", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestApplyHintAccumulates(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Open(ctx, "S1", "u1", "p1", ""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var sess *domain.Session
	var err error
	for _, level := range []int{1, 1, 2} {
		sess, err = reg.ApplyHint(ctx, "S1", level)
		if err != nil {
			t.Fatalf("ApplyHint(%d) error = %v", level, err)
		}
	}
	if sess.HintPenalty != 20 || sess.TotalHintsUsed != 3 {
		t.Fatalf("penalty=%d hints=%d, want 20 and 3", sess.HintPenalty, sess.TotalHintsUsed)
	}

	if _, err := reg.ApplyHint(ctx, "S1", 7); !errors.Is(err, domain.ErrInvalidHintLevel) {
		t.Fatalf("expected ErrInvalidHintLevel, got %v", err)
	}
	if _, err := reg.ApplyHint(ctx, "missing", 1); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestApplyEvaluationOverwrites(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Open(ctx, "S1", "u1", "p1", ""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := reg.ApplyEvaluation(ctx, "S1", 70); err != nil {
		t.Fatalf("ApplyEvaluation(70) error = %v", err)
	}
	sess, err := reg.ApplyEvaluation(ctx, "S1", 85)
	if err != nil {
		t.Fatalf("ApplyEvaluation(85) error = %v", err)
	}
	if sess.PointsEarned != 85 {
		t.Fatalf("points = %d, want 85", sess.PointsEarned)
	}
	if !sess.AIPairProgrammerUsed {
		t.Fatal("evaluation should mark AI usage")
	}

	for _, bad := range []int{-1, 101} {
		if _, err := reg.ApplyEvaluation(ctx, "S1", bad); !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("score %d: expected ErrInvalidScore, got %v", bad, err)
		}
	}
}

func TestFinalizeForwardOnly(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg, _ := newTestRegistry(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := reg.Open(ctx, "S1", "u1", "p1", ""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	sess, err := reg.Finalize(ctx, "S1", domain.StatusSubmitted)
	if err != nil {
		t.Fatalf("Finalize(submitted) error = %v", err)
	}
	if sess.SubmittedAt == nil || !sess.SubmittedAt.Equal(now) {
		t.Fatalf("submitted_at = %v, want %v", sess.SubmittedAt, now)
	}

	if _, err := reg.Finalize(ctx, "S1", domain.StatusSubmitted); err != nil {
		t.Fatalf("repeat Finalize(submitted) should be a no-op, got %v", err)
	}
	if _, err := reg.Finalize(ctx, "S1", domain.StatusInProgress); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := reg.Finalize(ctx, "S1", domain.StatusAbandoned); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for submitted -> abandoned, got %v", err)
	}

	sess, err = reg.Finalize(ctx, "S1", domain.StatusCompleted)
	if err != nil {
		t.Fatalf("Finalize(completed) error = %v", err)
	}
	if sess.Status != domain.StatusCompleted || !sess.SubmittedAt.Equal(now) {
		t.Fatalf("completed session = %+v", sess)
	}

	if _, err := reg.Finalize(ctx, "missing", domain.StatusSubmitted); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSweepIdleAbandonsStaleSessions(t *testing.T) {
	t.Parallel()
	current := time.Now().Add(-2 * time.Hour)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	reg, _ := newTestRegistry(t, WithClock(clock))
	ctx := context.Background()

	for _, id := range []string{"stale", "submitted"} {
		if _, err := reg.Open(ctx, id, "u1", "p1", ""); err != nil {
			t.Fatalf("Open(%s) error = %v", id, err)
		}
	}
	if _, err := reg.Finalize(ctx, "submitted", domain.StatusSubmitted); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	mu.Lock()
	current = time.Now()
	mu.Unlock()
	if _, err := reg.Open(ctx, "fresh", "u1", "p1", ""); err != nil {
		t.Fatalf("Open(fresh) error = %v", err)
	}

	var abandoned []string
	n := reg.SweepIdle(ctx, time.Hour, func(id string) { abandoned = append(abandoned, id) })
	if n != 1 || len(abandoned) != 1 || abandoned[0] != "stale" {
		t.Fatalf("abandoned %v (n=%d), want [stale]", abandoned, n)
	}

	sess, err := reg.Get(ctx, "stale")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.Status != domain.StatusAbandoned {
		t.Fatalf("status = %s, want abandoned", sess.Status)
	}
}

// flakySessionStore fails AddHint with a lock error a fixed number of times.
type flakySessionStore struct {
	store.SessionStore
	mu       sync.Mutex
	failures int
	err      error
}

func (f *flakySessionStore) AddHint(ctx context.Context, id string, penalty int, at time.Time) (*domain.Session, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, f.err
	}
	f.mu.Unlock()
	return f.SessionStore.AddHint(ctx, id, penalty, at)
}

func TestApplyHintRetriesTransientConflicts(t *testing.T) {
	t.Parallel()
	_, s := newTestRegistry(t)
	flaky := &flakySessionStore{SessionStore: s, failures: 2, err: errors.New("database is locked")}
	reg := New(flaky, WithRetryPolicy(shared.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}))
	ctx := context.Background()

	if _, err := reg.Open(ctx, "S1", "u1", "p1", ""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sess, err := reg.ApplyHint(ctx, "S1", 2)
	if err != nil {
		t.Fatalf("ApplyHint() error = %v", err)
	}
	if sess.HintPenalty != 10 || sess.TotalHintsUsed != 1 {
		t.Fatalf("penalty=%d hints=%d; a retried charge must apply exactly once", sess.HintPenalty, sess.TotalHintsUsed)
	}
}

func TestApplyHintSurfacesPersistentFailures(t *testing.T) {
	t.Parallel()
	_, s := newTestRegistry(t)
	outage := errors.New("permission denied")
	flaky := &flakySessionStore{SessionStore: s, failures: 100, err: outage}
	reg := New(flaky, WithRetryPolicy(shared.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}))
	ctx := context.Background()

	if _, err := reg.Open(ctx, "S1", "u1", "p1", ""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := reg.ApplyHint(ctx, "S1", 1); !errors.Is(err, outage) {
		t.Fatalf("expected outage error to surface, got %v", err)
	}

	sess, err := reg.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.HintPenalty != 0 {
		t.Fatalf("penalty = %d after failed charge, want 0", sess.HintPenalty)
	}
}

func TestOpenStoresStarterCodeOnce(t *testing.T) {
	t.Parallel()
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Open(ctx, "S1", "u1", "p1", "export default function App() {}"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sess, err := reg.Open(ctx, "S1", "u1", "p1", "something else")
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if sess.StarterCode != "export default function App() {}" {
		t.Fatalf("starter code = %q", sess.StarterCode)
	}
}
