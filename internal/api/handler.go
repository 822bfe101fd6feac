// Package api provides HTTP and WebSocket handlers for the AuraCode API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/ai"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/analytics"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/broadcast"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/identity"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/playback"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/recorder"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/registry"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/sandbox"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/store"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Executor runs code for the run endpoint.
type Executor interface {
	Execute(ctx context.Context, req sandbox.Request) (*sandbox.Result, error)
}

// Deps are the collaborators behind the API.
type Deps struct {
	Store     store.Repository
	Registry  *registry.Registry
	Recorder  *recorder.Recorder
	Analytics *analytics.Service
	AI        *ai.Service
	Sandbox   Executor // nil disables the run endpoint
	Hub       *broadcast.Hub
	Publisher broadcast.Publisher
	Player    *playback.Player

	DashboardRefresh time.Duration
	SandboxLimit     time.Duration
	MaxRequestBody   int64
	AllowedOrigins   []string
	IsDev            bool
}

// Handler serves the session capture and replay API.
type Handler struct {
	Deps
	streams  *StreamManager
	runLocks sync.Map // session id -> *sync.Mutex
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	if deps.MaxRequestBody <= 0 {
		deps.MaxRequestBody = defaultMaxRequestBodySize
	}
	if deps.DashboardRefresh <= 0 {
		deps.DashboardRefresh = 5 * time.Second
	}
	if deps.Player == nil {
		deps.Player = playback.NewPlayer(playback.DefaultMaxGap)
	}
	if deps.AI == nil {
		deps.AI = ai.NewService(nil)
	}
	if deps.Publisher == nil && deps.Hub != nil {
		deps.Publisher = deps.Hub
	}
	return &Handler{Deps: deps, streams: NewStreamManager()}
}

// Streams exposes the live recording connections.
func (h *Handler) Streams() *StreamManager {
	return h.streams
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v and writes the error response
// itself when it fails.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidTransition),
		errors.Is(err, registry.ErrSessionMismatch):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidScore),
		errors.Is(err, registry.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidHintLevel),
		errors.Is(err, domain.ErrUnknownEventType),
		errors.Is(err, domain.ErrMalformedPayload),
		errors.Is(err, playback.ErrInvalidSpeed),
		errors.Is(err, sandbox.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes a mapped error response. Internal failures do not
// leak their message.
func fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error(msg, "error", err, "path", r.URL.Path)
		Error(w, code, msg)
		return
	}
	Error(w, code, err.Error())
}

// loadSession fetches the {id} session and writes a response when it fails.
func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	sess, err := h.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, "failed to load session", err)
		return nil, false
	}
	return sess, true
}

// ownedSession is loadSession restricted to the participant who owns it.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return nil, false
	}
	if sess.UserID != identity.UserIDFromContext(r.Context()) {
		Error(w, http.StatusForbidden, "session belongs to another participant")
		return nil, false
	}
	return sess, true
}

// activeSession is ownedSession that also requires the session to be in progress.
func (h *Handler) activeSession(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return nil, false
	}
	if !sess.Status.Active() {
		Error(w, http.StatusConflict, "session is "+string(sess.Status))
		return nil, false
	}
	return sess, true
}
