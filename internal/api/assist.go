package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/ai"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/sandbox"
)

// codeFor returns the submitted code, or the recorder's shadow of the
// session buffer when none was sent.
func (h *Handler) codeFor(sess *domain.Session, code string) string {
	if code != "" {
		return code
	}
	if current, ok := h.Recorder.CurrentCode(sess.ID); ok {
		return current
	}
	return sess.StarterCode
}

type hintRequest struct {
	Problem          domain.Problem `json:"problem"`
	Code             string         `json:"code"`
	Level            *int           `json:"hint_level"`
	PreviousAttempts int            `json:"previous_attempts"`
}

type hintResponse struct {
	Hint    *domain.Hint    `json:"hint"`
	Session sessionResponse `json:"session"`
}

// RequestHint generates a hint, charges its penalty and records the request.
// The penalty is charged even when the hint text is the canned fallback.
func (h *Handler) RequestHint(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeSession(w, r)
	if !ok {
		return
	}
	var req hintRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Level == nil {
		Error(w, http.StatusBadRequest, "hint_level is required")
		return
	}
	if req.Problem.ID == "" {
		req.Problem.ID = sess.ProblemID
	}
	code := h.codeFor(sess, req.Code)

	hint, err := h.AI.Hint(r.Context(), ai.HintRequest{
		Problem:          req.Problem,
		Code:             code,
		Level:            *req.Level,
		PreviousAttempts: req.PreviousAttempts,
		SessionID:        sess.ID,
		UserID:           sess.UserID,
	})
	if err != nil {
		fail(w, r, "failed to generate hint", err)
		return
	}

	updated, err := h.Registry.ApplyHint(r.Context(), sess.ID, int(hint.Level))
	if err != nil {
		fail(w, r, "failed to apply hint penalty", err)
		return
	}
	h.Recorder.BeginAt(sess.ID, sess.UserID, sess.StarterCode, sess.StartedAt)
	h.Recorder.RecordPayload(sess.ID, sess.UserID, domain.HintRequest{
		Level:   int(hint.Level),
		Code:    code,
		Penalty: hint.Penalty,
		Source:  string(hint.Source),
	})
	h.Registry.Touch(r.Context(), sess.ID)

	JSON(w, http.StatusOK, hintResponse{Hint: hint, Session: newSessionResponse(updated)})
}

type evaluateRequest struct {
	Problem domain.Problem `json:"problem"`
	Code    string         `json:"code"`
}

type evaluateResponse struct {
	Evaluation *domain.Evaluation `json:"evaluation"`
	Session    sessionResponse    `json:"session"`
}

// Evaluate grades the submission and stores the overall score. Unlike hints,
// a grading failure is surfaced so the participant can retry.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeSession(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Problem.ID == "" {
		req.Problem.ID = sess.ProblemID
	}
	code := h.codeFor(sess, req.Code)
	if code == "" {
		Error(w, http.StatusBadRequest, "no code to evaluate")
		return
	}

	eval, err := h.AI.Evaluate(r.Context(), ai.EvaluationRequest{
		Problem:   req.Problem,
		Code:      code,
		SessionID: sess.ID,
		UserID:    sess.UserID,
	})
	if err != nil {
		slog.Warn("Evaluation failed", "session_id", sess.ID, "error", err)
		Error(w, http.StatusBadGateway, "evaluation unavailable, try again")
		return
	}

	updated, err := h.Registry.ApplyEvaluation(r.Context(), sess.ID, eval.OverallScore)
	if err != nil {
		fail(w, r, "failed to apply evaluation", err)
		return
	}
	JSON(w, http.StatusOK, evaluateResponse{Evaluation: eval, Session: newSessionResponse(updated)})
}

type pairRequest struct {
	Problem domain.Problem `json:"problem"`
	Code    string         `json:"code"`
	Prompt  string         `json:"prompt"`
}

// Pair streams pair-programmer suggestions as server-sent events.
func (h *Handler) Pair(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeSession(w, r)
	if !ok {
		return
	}
	var req pairRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Problem.ID == "" {
		req.Problem.ID = sess.ProblemID
	}
	code := h.codeFor(sess, req.Code)

	if _, err := h.Registry.MarkAIUsed(r.Context(), sess.ID); err != nil {
		fail(w, r, "failed to mark pair programmer use", err)
		return
	}
	h.Recorder.BeginAt(sess.ID, sess.UserID, sess.StarterCode, sess.StartedAt)
	h.Recorder.RecordPayload(sess.ID, sess.UserID, domain.AIPairRequest{Prompt: req.Prompt, Code: code})

	stream, ok := newSSEStream(w)
	if !ok {
		return
	}

	steps := 0
	for suggestion, err := range h.AI.Pair(r.Context(), ai.PairRequest{
		Problem:   req.Problem,
		Code:      code,
		Prompt:    req.Prompt,
		SessionID: sess.ID,
		UserID:    sess.UserID,
	}) {
		if err != nil {
			slog.Warn("Pair stream failed", "session_id", sess.ID, "steps", steps, "error", err)
			if writeErr := stream.event("error", map[string]string{"error": "pair programmer unavailable"}); writeErr != nil {
				slog.Warn("failed to write SSE error event", "error", writeErr)
			}
			return
		}
		steps++
		if err := stream.event("message", suggestion); err != nil {
			slog.Warn("failed to write SSE message event", "session_id", sess.ID, "error", err)
			return
		}
	}
	if err := stream.event("done", map[string]int{"steps": steps}); err != nil {
		slog.Warn("failed to write SSE done event", "error", err)
	}
}

type runRequest struct {
	Code      string            `json:"code"`
	Language  string            `json:"language"`
	TestCases []domain.TestCase `json:"test_cases"`
}

// Run executes code in the sandbox and records the outcome as run_code, or
// test_run when test cases were supplied. One run per session at a time.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	if h.Sandbox == nil {
		Error(w, http.StatusServiceUnavailable, "code execution is disabled")
		return
	}
	sess, ok := h.activeSession(w, r)
	if !ok {
		return
	}
	var req runRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	code := h.codeFor(sess, req.Code)
	if code == "" {
		Error(w, http.StatusBadRequest, "no code to run")
		return
	}

	lockVal, _ := h.runLocks.LoadOrStore(sess.ID, &sync.Mutex{})
	mu := lockVal.(*sync.Mutex)
	if !mu.TryLock() {
		Error(w, http.StatusConflict, "a run is already in progress for this session")
		return
	}
	defer mu.Unlock()

	res, err := h.Sandbox.Execute(r.Context(), sandbox.Request{
		Code:      code,
		Language:  req.Language,
		TestCases: req.TestCases,
		TimeLimit: h.SandboxLimit,
	})
	if err != nil {
		if errors.Is(err, sandbox.ErrUnsupportedLanguage) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Sandbox execution failed", "session_id", sess.ID, "error", err)
		Error(w, http.StatusBadGateway, "code execution failed")
		return
	}

	var payload domain.Payload = domain.RunCode{
		Code:       code,
		Output:     res.Output,
		Error:      res.Error,
		DurationMS: res.DurationMS,
	}
	if res.HasTests() {
		payload = domain.TestRun{Code: code, Passed: res.Passed, Total: res.Total, Results: res.Tests}
	}
	h.Recorder.BeginAt(sess.ID, sess.UserID, sess.StarterCode, sess.StartedAt)
	h.Recorder.RecordPayload(sess.ID, sess.UserID, payload)
	h.Registry.Touch(r.Context(), sess.ID)

	JSON(w, http.StatusOK, res)
}

// sseStream writes server-sent events and flushes after each one.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEStream(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseStream{w: w, flusher: flusher}, true
}

func (s *sseStream) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := writeSSE(s.w, name, string(data)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) eventWithID(id int64, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := writeSSEWithID(s.w, id, name, string(data)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
