package ai

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

type fakeMentor struct {
	mu        sync.Mutex
	hintCalls int
	evalCalls int
	hintErrs  []error
	lastHint  HintRequest
	eval      *domain.Evaluation
	evalErr   error
	pairs     []PairSuggestion
}

func (f *fakeMentor) GenerateHint(_ context.Context, req HintRequest) (*HintResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hintCalls++
	f.lastHint = req
	if len(f.hintErrs) > 0 {
		err := f.hintErrs[0]
		f.hintErrs = f.hintErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &HintResponse{Hint: "use state"}, nil
}

func (f *fakeMentor) Evaluate(_ context.Context, _ EvaluationRequest) (*domain.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evalCalls++
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return f.eval, nil
}

func (f *fakeMentor) Pair(_ context.Context, _ PairRequest) iter.Seq2[*PairSuggestion, error] {
	return func(yield func(*PairSuggestion, error) bool) {
		for i := range f.pairs {
			if !yield(&f.pairs[i], nil) {
				return
			}
		}
	}
}

func (f *fakeMentor) Close() {}

func newTestService(m Mentor, opts ...Option) *Service {
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetryDelays(time.Second, 2*time.Second, 4*time.Second),
	}, opts...)
	s := NewService(m, opts...)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestEffectiveLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		requested, attempts int
		want                domain.HintLevel
	}{
		{0, 0, domain.HintNudge},
		{1, 5, domain.HintGuidance},
		{1, 6, domain.HintPattern},
		{3, 10, domain.HintStructure},
	}
	for _, tt := range tests {
		got, err := EffectiveLevel(tt.requested, tt.attempts)
		if err != nil {
			t.Fatalf("EffectiveLevel(%d, %d) error = %v", tt.requested, tt.attempts, err)
		}
		if got != tt.want {
			t.Errorf("EffectiveLevel(%d, %d) = %v, want %v", tt.requested, tt.attempts, got, tt.want)
		}
	}
	if _, err := EffectiveLevel(4, 0); !errors.Is(err, domain.ErrInvalidHintLevel) {
		t.Fatalf("expected ErrInvalidHintLevel, got %v", err)
	}
}

func TestHintChargesEscalatedLevel(t *testing.T) {
	t.Parallel()

	m := &fakeMentor{}
	s := newTestService(m)
	hint, err := s.Hint(context.Background(), HintRequest{Level: 1, PreviousAttempts: 7, SessionID: "s1"})
	if err != nil {
		t.Fatalf("Hint() error = %v", err)
	}
	if hint.Level != domain.HintPattern || hint.Penalty != 10 {
		t.Fatalf("level=%v penalty=%d, want pattern and 10", hint.Level, hint.Penalty)
	}
	if hint.Source != domain.HintSourceAI || hint.Content != "use state" {
		t.Fatalf("hint = %+v", hint)
	}
	if m.lastHint.Level != 2 {
		t.Fatalf("mentor saw level %d, want 2", m.lastHint.Level)
	}
}

func TestHintRetriesRateLimits(t *testing.T) {
	t.Parallel()

	limited := status.Error(codes.ResourceExhausted, "quota")
	m := &fakeMentor{hintErrs: []error{limited, limited}}
	s := newTestService(m)

	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	hint, err := s.Hint(context.Background(), HintRequest{Level: 0})
	if err != nil {
		t.Fatalf("Hint() error = %v", err)
	}
	if hint.Source != domain.HintSourceAI || m.hintCalls != 3 {
		t.Fatalf("source=%s calls=%d", hint.Source, m.hintCalls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("backoff = %v", slept)
	}
}

func TestHintFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	m := &fakeMentor{hintErrs: []error{errors.New("boom")}}
	s := newTestService(m)

	hint, err := s.Hint(context.Background(), HintRequest{Level: 3})
	if err != nil {
		t.Fatalf("Hint() error = %v", err)
	}
	if hint.Source != domain.HintSourceFallback || hint.Penalty != 20 {
		t.Fatalf("hint = %+v", hint)
	}
	if hint.Content != FallbackHint(domain.HintStructure).Hint {
		t.Fatalf("content = %q", hint.Content)
	}
	if m.hintCalls != 1 {
		t.Fatalf("non rate-limit errors should not retry, calls=%d", m.hintCalls)
	}

	noMentor := newTestService(nil)
	hint, err = noMentor.Hint(context.Background(), HintRequest{Level: 0})
	if err != nil || hint.Source != domain.HintSourceFallback {
		t.Fatalf("nil mentor: hint=%+v err=%v", hint, err)
	}
}

func TestHintCacheServesIdenticalRequests(t *testing.T) {
	t.Parallel()

	m := &fakeMentor{}
	s := newTestService(m, WithCache(NewMemoryCache(time.Minute, 10)))
	req := HintRequest{Level: 1, Code: "x", Problem: domain.Problem{ID: "p1"}}

	for _, sessionID := range []string{"s1", "s2"} {
		req.SessionID = sessionID
		if _, err := s.Hint(context.Background(), req); err != nil {
			t.Fatalf("Hint() error = %v", err)
		}
	}
	if m.hintCalls != 1 {
		t.Fatalf("mentor calls = %d, want 1", m.hintCalls)
	}
}

func TestEvaluateSurfacesErrors(t *testing.T) {
	t.Parallel()

	m := &fakeMentor{evalErr: errors.New("model overloaded")}
	s := newTestService(m)
	if _, err := s.Evaluate(context.Background(), EvaluationRequest{}); err == nil {
		t.Fatal("expected evaluation error")
	}
	if _, err := newTestService(nil).Evaluate(context.Background(), EvaluationRequest{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestEvaluateClampsScore(t *testing.T) {
	t.Parallel()

	m := &fakeMentor{eval: &domain.Evaluation{OverallScore: 130}}
	eval, err := newTestService(m).Evaluate(context.Background(), EvaluationRequest{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if eval.OverallScore != domain.MaxScore {
		t.Fatalf("overall = %d, want %d", eval.OverallScore, domain.MaxScore)
	}
}

func TestEvaluationWireWithoutOverallSumsCategories(t *testing.T) {
	t.Parallel()

	var w evaluationWire
	w.Categories = append(w.Categories, struct {
		Category string `json:"category"`
		Score    int    `json:"score"`
		MaxScore int    `json:"max_score"`
		Feedback string `json:"feedback"`
	}{Category: domain.CategoryArchitecture, Score: 15, MaxScore: 20})
	if got := w.toEvaluation().OverallScore; got != 15 {
		t.Fatalf("overall = %d, want 15", got)
	}
}

func TestPairWithoutMentor(t *testing.T) {
	t.Parallel()

	for s, err := range newTestService(nil).Pair(context.Background(), PairRequest{}) {
		if s != nil || !errors.Is(err, ErrUnavailable) {
			t.Fatalf("got %v, %v", s, err)
		}
	}
}
