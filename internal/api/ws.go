package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/playback"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/recorder"
)

const (
	wsWriteTimeout = 5 * time.Second
	// touchInterval throttles activity stamps from a busy recording stream.
	touchInterval = 30 * time.Second
)

// wsInbound is one client frame on the recording stream.
type wsInbound struct {
	Type      string           `json:"type,omitempty"`
	ID        string           `json:"id,omitempty"`
	EventType domain.EventType `json:"event_type,omitempty"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

type wsAck struct {
	Type   string           `json:"type"`
	ID     string           `json:"id,omitempty"`
	Result *recorder.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type wsFrame struct {
	Type  string          `json:"type"`
	Frame *playback.Frame `json:"frame,omitempty"`
	Error string          `json:"error,omitempty"`
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.AllowedOrigins) == 0 || slices.Contains(h.AllowedOrigins, "*") {
		return true
	}
	if slices.Contains(h.AllowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.AllowedOrigins)
	return false
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	if !h.checkOrigin(r) {
		Error(w, http.StatusForbidden, "origin not allowed")
		return nil, false
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "path", r.URL.Path)
		return nil, false
	}
	ws.SetReadLimit(h.MaxRequestBody)
	return ws, true
}

func writeWSJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// RecordStream is the low-latency recording channel. Each text frame carries
// one event; each is answered with an ack holding the recording outcome.
func (h *Handler) RecordStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeSession(w, r)
	if !ok {
		return
	}
	ws, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "recording ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sess.ID)
		}
	}()

	h.streams.Register(sess.ID, ws)
	defer h.streams.Unregister(sess.ID, ws)

	ctx := r.Context()
	h.Recorder.BeginAt(sess.ID, sess.UserID, sess.StarterCode, sess.StartedAt)
	slog.Info("Recording stream opened", "session_id", sess.ID, "user_id", sess.UserID)

	var lastTouch time.Time
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("Recording stream closed by client", "session_id", sess.ID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sess.ID)
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := writeWSJSON(ctx, ws, wsAck{Type: "error", Error: "invalid frame"}); err != nil {
				return
			}
			continue
		}

		if msg.Type == "ping" {
			if err := writeWSJSON(ctx, ws, wsAck{Type: "pong", ID: msg.ID}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
				return
			}
			continue
		}

		res := h.record(sess, msg.EventType, msg.Payload)
		if err := writeWSJSON(ctx, ws, wsAck{Type: "ack", ID: msg.ID, Result: &res}); err != nil {
			slog.Debug("Failed to send ack", "error", err, "session_id", sess.ID)
			return
		}

		if res.Accepted() && time.Since(lastTouch) >= touchInterval {
			lastTouch = time.Now()
			h.Registry.Touch(ctx, sess.ID)
		}
	}
}

// PlaybackStream replays a session in real time. Query parameters: speed
// (multiplier, 0 for as fast as possible, default 1) and from (ms offset).
func (h *Handler) PlaybackStream(w http.ResponseWriter, r *http.Request) {
	speed := 1.0
	if raw := r.URL.Query().Get("speed"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			Error(w, http.StatusBadRequest, "speed must be a number")
			return
		}
		speed = v
	}
	if err := playback.ValidateSpeed(speed); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	var from int64
	if raw := r.URL.Query().Get("from"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			Error(w, http.StatusBadRequest, "from must be an integer millisecond offset")
			return
		}
		from = v
	}

	sess, tl, err := h.loadTimeline(r)
	if err != nil {
		fail(w, r, "failed to load timeline", err)
		return
	}

	ws, ok := h.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "playback ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sess.ID)
		}
	}()

	// Playback is one-way; CloseRead cancels ctx when the viewer goes away.
	ctx := ws.CloseRead(r.Context())
	slog.Info("Playback started", "session_id", sess.ID, "speed", speed, "from_ms", from, "events", tl.Len())

	err = h.Player.Play(ctx, tl, speed, from, func(f playback.Frame) error {
		return writeWSJSON(ctx, ws, wsFrame{Type: "frame", Frame: &f})
	})
	switch {
	case err == nil:
		if err := writeWSJSON(ctx, ws, wsFrame{Type: "end"}); err != nil {
			slog.Debug("Failed to send playback end", "error", err)
		}
	case errors.Is(err, context.Canceled):
		slog.Debug("Playback cancelled by viewer", "session_id", sess.ID)
	default:
		slog.Warn("Playback stopped", "session_id", sess.ID, "error", err)
	}
}
