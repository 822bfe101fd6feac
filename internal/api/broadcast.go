package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

const (
	sseRetryDelay        = 5 * time.Second
	sseKeepaliveInterval = 15 * time.Second
)

// BroadcastStream feeds newly published problems to a contestant's browser.
// Clients reconnecting with Last-Event-ID get the messages they missed, as
// long as they are still in the hub's history.
func (h *Handler) BroadcastStream(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		Error(w, http.StatusServiceUnavailable, "broadcast is disabled")
		return
	}

	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	stream, ok := newSSEStream(w)
	if !ok {
		return
	}
	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", sseRetryDelay.Milliseconds())); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err)
		return
	}
	stream.flusher.Flush()

	sub, missed := h.Hub.Subscribe(lastEventID)
	defer sub.Close()

	for _, msg := range missed {
		if err := stream.eventWithID(msg.ID, msg.Type, msg); err != nil {
			slog.Warn("failed to replay broadcast", "error", err)
			return
		}
	}
	if err := stream.event("connected", map[string]any{"status": "connected", "replayed": len(missed)}); err != nil {
		slog.Warn("failed to write SSE connected event", "error", err)
		return
	}
	slog.Debug("Broadcast stream connected", "reconnect", lastEventID > 0, "replayed", len(missed))

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := stream.eventWithID(msg.ID, msg.Type, msg); err != nil {
				slog.Warn("failed to write broadcast", "error", err)
				return
			}
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err)
				return
			}
			stream.flusher.Flush()
		}
	}
}

// PublishProblem pushes a problem to every connected contestant.
func (h *Handler) PublishProblem(w http.ResponseWriter, r *http.Request) {
	if h.Publisher == nil {
		Error(w, http.StatusServiceUnavailable, "broadcast is disabled")
		return
	}
	var p domain.Problem
	if !h.decodeJSON(w, r, &p) {
		return
	}
	if p.ID == "" || p.Title == "" {
		Error(w, http.StatusBadRequest, "problem id and title are required")
		return
	}
	if err := h.Publisher.Publish(r.Context(), p); err != nil {
		slog.Error("Failed to publish problem", "problem_id", p.ID, "error", err)
		Error(w, http.StatusBadGateway, "failed to publish problem")
		return
	}
	slog.Info("Problem broadcast", "problem_id", p.ID)
	JSON(w, http.StatusAccepted, map[string]string{"status": "published", "problem_id": p.ID})
}

// DeleteEvents purges a session's recorded events.
func (h *Handler) DeleteEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	n, err := h.Store.DeleteBySession(r.Context(), sessionID)
	if err != nil {
		fail(w, r, "failed to delete events", err)
		return
	}
	slog.Info("Session events deleted", "session_id", sessionID, "count", n)
	JSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "deleted": n})
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
