package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// streamConn is the part of a websocket connection the manager needs.
type streamConn interface {
	Close(code websocket.StatusCode, reason string) error
}

// StreamManager tracks the live recording connection of each session. A
// session has at most one recorder: a new connection replaces the old one.
type StreamManager struct {
	mu     sync.RWMutex
	active map[string]streamConn
}

// NewStreamManager creates an empty manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{active: make(map[string]streamConn)}
}

// Active returns the connection recording sessionID, if any.
func (m *StreamManager) Active(sessionID string) streamConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// Len returns the number of sessions with a live recorder.
func (m *StreamManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Register makes conn the recorder for sessionID, closing any previous one.
func (m *StreamManager) Register(sessionID string, conn streamConn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[sessionID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusPolicyViolation, "recording moved to another connection")
		slog.Info("Recording stream replaced", "session_id", sessionID)
	}
	m.active[sessionID] = conn
	slog.Debug("Recording stream registered", "session_id", sessionID)
}

// Unregister removes conn if it is still the session's recorder.
func (m *StreamManager) Unregister(sessionID string, conn streamConn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[sessionID]; ok && current == conn {
		delete(m.active, sessionID)
		slog.Debug("Recording stream unregistered", "session_id", sessionID)
	}
}

// Close terminates the session's recorder, if any.
func (m *StreamManager) Close(sessionID, reason string) {
	m.mu.Lock()
	conn, ok := m.active[sessionID]
	delete(m.active, sessionID)
	m.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, reason)
	slog.Info("Recording stream closed", "session_id", sessionID, "reason", reason)
}
