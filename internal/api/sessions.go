package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/identity"
)

type createSessionRequest struct {
	SessionID   string `json:"session_id"`
	ProblemID   string `json:"problem_id"`
	StarterCode string `json:"starter_code"`
}

// sessionResponse shadows the owner id so it is only serialized for the owner.
// Anonymous ids double as cookie credentials.
type sessionResponse struct {
	*domain.Session
	UserID   string `json:"user_id,omitempty"`
	NetScore int    `json:"net_score"`
}

func newSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{Session: s, UserID: s.UserID, NetScore: s.NetScore()}
}

func publicSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{Session: s, NetScore: s.NetScore()}
}

// CreateSession opens or resumes a session and starts its recording clock.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req createSessionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.ProblemID == "" {
		Error(w, http.StatusBadRequest, "problem_id is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	sess, err := h.Registry.Open(r.Context(), req.SessionID, userID, req.ProblemID, req.StarterCode)
	if err != nil {
		fail(w, r, "failed to open session", err)
		return
	}
	if sess.Status.Active() {
		h.Recorder.BeginAt(sess.ID, sess.UserID, sess.StarterCode, sess.StartedAt)
	}

	JSON(w, http.StatusOK, newSessionResponse(sess))
}

// GetSession returns the session snapshot. The owner id is only shown to the owner.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if sess.UserID == identity.UserIDFromContext(r.Context()) {
		JSON(w, http.StatusOK, newSessionResponse(sess))
		return
	}
	JSON(w, http.StatusOK, publicSessionResponse(sess))
}

type finalizeRequest struct {
	Status domain.Status `json:"status"`
}

// Finalize moves the session forward to submitted, abandoned or completed.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	var req finalizeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		req.Status = domain.StatusSubmitted
	}

	updated, err := h.Registry.Finalize(r.Context(), sess.ID, req.Status)
	if err != nil {
		fail(w, r, "failed to finalize session", err)
		return
	}
	if !updated.Status.Active() {
		h.Recorder.End(updated.ID)
		h.streams.Close(updated.ID, "session "+string(updated.Status))
	}
	JSON(w, http.StatusOK, newSessionResponse(updated))
}

type dashboardResponse struct {
	Sessions          []sessionResponse `json:"sessions"`
	RefreshIntervalMS int64             `json:"refresh_interval_ms"`
}

// Dashboard lists active sessions and tells clients how often to poll.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Registry.ListActive(r.Context(), 200)
	if err != nil {
		fail(w, r, "failed to list sessions", err)
		return
	}
	resp := dashboardResponse{
		Sessions:          make([]sessionResponse, 0, len(sessions)),
		RefreshIntervalMS: h.DashboardRefresh.Milliseconds(),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, publicSessionResponse(s))
	}
	JSON(w, http.StatusOK, resp)
}
