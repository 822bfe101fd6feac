package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

var (
	// ErrUnavailable is returned when no mentor is configured or it keeps failing.
	ErrUnavailable = errors.New("mentor unavailable")
)

// escalateAfter is the attempt count past which a hint level is raised by one.
const escalateAfter = 5

// Service adds level policy, retries, caching and fallbacks on top of a Mentor.
type Service struct {
	mentor Mentor
	cache  Cache
	delays []time.Duration
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables response caching.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRetryDelays overrides the rate-limit backoff schedule.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(s *Service) { s.delays = delays }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wraps mentor. A nil mentor is allowed: hints fall back to
// canned text and evaluation reports ErrUnavailable.
func NewService(mentor Mentor, opts ...Option) *Service {
	s := &Service{
		mentor: mentor,
		delays: DefaultConfig().RetryDelays,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EffectiveLevel applies escalation to a requested level.
func EffectiveLevel(requested, previousAttempts int) (domain.HintLevel, error) {
	if _, err := domain.HintPenalty(requested); err != nil {
		return 0, err
	}
	level := domain.HintLevel(requested)
	if previousAttempts > escalateAfter && level < domain.MaxHintLevel {
		level++
	}
	return level, nil
}

// Hint produces a hint for req. Upstream failures degrade to a fallback
// hint; only an invalid level or a cancelled context is an error. The
// penalty is always the schedule value of the final level.
func (s *Service) Hint(ctx context.Context, req HintRequest) (*domain.Hint, error) {
	level, err := EffectiveLevel(req.Level, req.PreviousAttempts)
	if err != nil {
		return nil, err
	}
	penalty, _ := domain.HintPenalty(int(level))
	req.Level = int(level)

	hint := &domain.Hint{
		SessionID: req.SessionID,
		ProblemID: req.Problem.ID,
		UserID:    req.UserID,
		Level:     level,
		Penalty:   penalty,
		Source:    domain.HintSourceAI,
		CreatedAt: s.now().UTC(),
	}

	resp, err := s.generateHint(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("hint generation failed, using fallback",
			"session_id", req.SessionID,
			"hint_level", level.String(),
			"error", err,
		)
		fb := FallbackHint(level)
		resp = &fb
		hint.Source = domain.HintSourceFallback
	}
	hint.Content = resp.Hint
	hint.CodeSnippet = resp.CodeSnippet
	return hint, nil
}

func (s *Service) generateHint(ctx context.Context, req HintRequest) (*HintResponse, error) {
	if s.mentor == nil {
		return nil, ErrUnavailable
	}
	// Identity fields do not change the answer.
	keyReq := req
	keyReq.SessionID, keyReq.UserID = "", ""
	var resp HintResponse
	err := s.cached(ctx, "hint", keyReq, &resp, func(ctx context.Context) (any, error) {
		return s.mentor.GenerateHint(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if resp.Hint == "" {
		return nil, fmt.Errorf("%w: empty hint", ErrMentorResponse)
	}
	return &resp, nil
}

// Evaluate grades a submission. Failures are returned so the caller can retry.
func (s *Service) Evaluate(ctx context.Context, req EvaluationRequest) (*domain.Evaluation, error) {
	if s.mentor == nil {
		return nil, ErrUnavailable
	}
	keyReq := req
	keyReq.SessionID, keyReq.UserID = "", ""
	var eval domain.Evaluation
	err := s.cached(ctx, "evaluate", keyReq, &eval, func(ctx context.Context) (any, error) {
		return s.mentor.Evaluate(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate submission: %w", err)
	}
	eval.Normalize(true)
	return &eval, nil
}

// Pair streams pair-programming suggestions.
func (s *Service) Pair(ctx context.Context, req PairRequest) iter.Seq2[*PairSuggestion, error] {
	if s.mentor == nil {
		return func(yield func(*PairSuggestion, error) bool) {
			yield(nil, ErrUnavailable)
		}
	}
	return s.mentor.Pair(ctx, req)
}

// cached serves req from the cache or calls fn with retries and stores the
// JSON result into out.
func (s *Service) cached(ctx context.Context, op string, req, out any, fn func(context.Context) (any, error)) error {
	key, keyErr := cacheKey(op, req)
	if s.cache != nil && keyErr == nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			if err := json.Unmarshal(raw, out); err == nil {
				return nil
			}
		}
	}

	result, err := s.withRetry(ctx, op, fn)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", op, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", op, err)
	}
	if s.cache != nil && keyErr == nil {
		s.cache.Set(ctx, key, raw)
	}
	return nil
}

func (s *Service) withRetry(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !isRateLimited(err) || attempt >= len(s.delays) {
			return nil, err
		}
		delay := s.delays[attempt]
		s.logger.Warn("mentor rate limited, retrying",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// isRateLimited reports whether err is worth retrying after a pause.
func isRateLimited(err error) bool {
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable:
		return true
	default:
		return false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
