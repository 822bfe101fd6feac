package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/playback"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/recorder"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/registry"
)

type recordRequest struct {
	Type    domain.EventType `json:"event_type"`
	Payload json.RawMessage  `json:"payload"`
}

// record resumes the session clock if needed and records one action.
func (h *Handler) record(sess *domain.Session, eventType domain.EventType, payload json.RawMessage) recorder.Result {
	h.Recorder.BeginAt(sess.ID, sess.UserID, sess.StarterCode, sess.StartedAt)
	return h.Recorder.Record(sess.ID, sess.UserID, eventType, payload)
}

// RecordEvent accepts one editor action. Recording is best effort: a dropped
// event still answers 202 with the outcome in the body.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeSession(w, r)
	if !ok {
		return
	}
	var req recordRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res := h.record(sess, req.Type, req.Payload)
	if res.Outcome == recorder.Rejected {
		JSON(w, http.StatusBadRequest, res)
		return
	}
	h.Registry.Touch(r.Context(), sess.ID)
	JSON(w, http.StatusAccepted, res)
}

// ListEvents returns the session timeline, optionally filtered by ?type=.
// An unknown session or type yields an empty list.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var (
		events []domain.Event
		err    error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		events, err = h.Store.ListBySessionAndType(r.Context(), sessionID, domain.EventType(t))
	} else {
		events, err = h.Store.ListBySession(r.Context(), sessionID)
	}
	if err != nil {
		fail(w, r, "failed to load events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	JSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "events": redactEvents(events)})
}

// redactEvents clears participant ids from events served on open routes.
func redactEvents(events []domain.Event) []domain.Event {
	for i := range events {
		events[i].UserID = ""
	}
	return events
}

// loadTimeline reads the session and its events concurrently. An unknown
// session yields an empty timeline.
func (h *Handler) loadTimeline(r *http.Request) (*domain.Session, *playback.Timeline, error) {
	sessionID := chi.URLParam(r, "id")

	var (
		sess   *domain.Session
		events []domain.Event
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		sess, err = h.Registry.Get(ctx, sessionID)
		if errors.Is(err, registry.ErrSessionNotFound) {
			sess = &domain.Session{ID: sessionID}
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		events, err = h.Store.ListBySession(ctx, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sess, playback.New(redactEvents(events), sess.StarterCode), nil
}

type seekResponse struct {
	SessionID  string            `json:"session_id"`
	State      playback.State    `json:"state"`
	Markers    []playback.Marker `json:"markers"`
	DurationMS int64             `json:"duration_ms"`
	EventCount int               `json:"event_count"`
}

// Seek reconstructs the editor at ?t= milliseconds, or the final state when
// t is absent.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var (
		at    int64
		atSet bool
	)
	if raw := r.URL.Query().Get("t"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			Error(w, http.StatusBadRequest, "t must be an integer millisecond offset")
			return
		}
		at, atSet = v, true
	}

	sess, tl, err := h.loadTimeline(r)
	if err != nil {
		fail(w, r, "failed to load timeline", err)
		return
	}

	state := tl.Final()
	if atSet {
		state = tl.Seek(at)
	}
	markers := tl.Markers()
	if markers == nil {
		markers = []playback.Marker{}
	}
	JSON(w, http.StatusOK, seekResponse{
		SessionID:  sess.ID,
		State:      state,
		Markers:    markers,
		DurationMS: tl.Duration(),
		EventCount: tl.Len(),
	})
}

// SessionAnalytics returns event counts and editing cadence for a session.
func (h *Handler) SessionAnalytics(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	summary, err := h.Analytics.Summarize(r.Context(), sess.ID)
	if err != nil {
		fail(w, r, "failed to summarize session", err)
		return
	}
	JSON(w, http.StatusOK, summary)
}
