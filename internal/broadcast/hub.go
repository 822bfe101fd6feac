// Package broadcast fans out newly published problems to connected clients.
// Delivery is fire-and-forget: a subscriber that cannot keep up misses messages.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

const (
	// Channel is the Redis pub/sub channel carrying problem broadcasts.
	Channel = "auracode:problems"

	defaultHistory   = 32
	subscriberBuffer = 16
)

// Message is one broadcast.
type Message struct {
	ID          int64          `json:"id"`
	Type        string         `json:"type"`
	Problem     domain.Problem `json:"problem"`
	PublishedAt time.Time      `json:"published_at"`
}

// Publisher sends a problem to every listener.
type Publisher interface {
	Publish(ctx context.Context, p domain.Problem) error
}

// Subscription is a live feed of messages.
type Subscription struct {
	C      <-chan Message
	id     int64
	hub    *Hub
	closed sync.Once
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.closed.Do(func() { s.hub.unsubscribe(s.id) })
}

// Hub delivers messages to in-process subscribers and keeps a short
// history so reconnecting clients can catch up.
type Hub struct {
	mu      sync.Mutex
	nextSub int64
	lastID  int64
	subs    map[int64]chan Message
	history []Message
	maxHist int
	now     func() time.Time
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[int64]chan Message),
		maxHist: defaultHistory,
		now:     time.Now,
		logger:  logger,
	}
}

// Publish stamps p and delivers it locally.
func (h *Hub) Publish(_ context.Context, p domain.Problem) error {
	h.deliver(Message{Type: "problem", Problem: p, PublishedAt: h.now().UTC()})
	return nil
}

// deliver assigns the next id and fans msg out without blocking.
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	msg.ID = h.lastID
	h.history = append(h.history, msg)
	if len(h.history) > h.maxHist {
		h.history = h.history[len(h.history)-h.maxHist:]
	}

	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("broadcast subscriber lagging, message dropped", "subscriber", id, "message_id", msg.ID)
		}
	}
}

// Subscribe registers a subscriber. Messages after lastEventID still in
// history are returned for replay.
func (h *Hub) Subscribe(lastEventID int64) (*Subscription, []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	ch := make(chan Message, subscriberBuffer)
	h.subs[h.nextSub] = ch

	var missed []Message
	if lastEventID > 0 {
		for _, m := range h.history {
			if m.ID > lastEventID {
				missed = append(missed, m)
			}
		}
	}
	return &Subscription{C: ch, id: h.nextSub, hub: h}, missed
}

func (h *Hub) unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
