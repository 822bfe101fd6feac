// Package recorder turns live editor actions into ordered, session-relative
// events and appends them to the event store without blocking the caller.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/metrics"
	"github.com/google/uuid"
)

// Appender is the write side of the event store.
type Appender interface {
	Append(ctx context.Context, event *domain.Event) (*domain.Event, error)
}

// Options configures a Recorder.
type Options struct {
	QueueSize     int
	AppendTimeout time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		QueueSize:     1000,
		AppendTimeout: 5 * time.Second,
		Now:           time.Now,
	}
}

// sessionClock is the per-session state: the start reference, the last
// emitted timestamp, and a shadow of the current editor buffer.
type sessionClock struct {
	userID string
	start  time.Time
	lastMS int64
	code   string
}

// Recorder is safe for concurrent use. Events for one session are queued in
// call order and appended by a single worker, so store order matches
// timestamp order.
type Recorder struct {
	store   Appender
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*sessionClock
	closed   bool

	queue chan *domain.Event
	done  chan struct{}

	queuedN, persistedN, failedN, droppedN, rejectedN atomic.Int64
}

// New starts a recorder that appends to store.
func New(store Appender, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if opts.AppendTimeout <= 0 {
		opts.AppendTimeout = DefaultOptions().AppendTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		store:    store,
		opts:     opts,
		logger:   logger,
		metrics:  opts.Metrics,
		sessions: make(map[string]*sessionClock),
		queue:    make(chan *domain.Event, opts.QueueSize),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Begin captures the session start reference. Later calls for the same
// session are no-ops so the clock is never reset.
func (r *Recorder) Begin(sessionID, userID, starterCode string) {
	r.BeginAt(sessionID, userID, starterCode, r.opts.Now())
}

// BeginAt is Begin with an explicit start, used when resuming a session whose
// start time is already persisted.
func (r *Recorder) BeginAt(sessionID, userID, starterCode string, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; ok {
		return
	}
	r.sessions[sessionID] = &sessionClock{userID: userID, start: start, code: starterCode}
	r.logger.Debug("Recorder session started", "session_id", sessionID, "user_id", userID)
}

// End forgets a session's clock and shadow buffer.
func (r *Recorder) End(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// CurrentCode returns the shadow of the session's latest code_change buffer.
func (r *Recorder) CurrentCode(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clock, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	return clock.code, true
}

// Record timestamps an action and queues it for append. It never returns an
// error: failures are reported in the Result and logged.
func (r *Recorder) Record(sessionID, userID string, eventType domain.EventType, payload json.RawMessage) Result {
	if sessionID == "" {
		return r.reject("", eventType, errors.New("session id is required"))
	}
	decoded, err := domain.DecodePayload(eventType, payload)
	if err != nil {
		return r.reject(sessionID, eventType, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.drop(sessionID, eventType, "recorder closed")
	}

	now := r.opts.Now()
	clock, ok := r.sessions[sessionID]
	if !ok {
		clock = &sessionClock{userID: userID, start: now}
		r.sessions[sessionID] = clock
		r.logger.Debug("Recorder session started implicitly", "session_id", sessionID)
	}
	if userID == "" {
		userID = clock.userID
	}

	ts := now.Sub(clock.start).Milliseconds()
	if ts < clock.lastMS {
		ts = clock.lastMS
	}

	switch p := decoded.(type) {
	case domain.CodeChange:
		clock.code = p.Code
	case domain.HintRequest:
		if p.Code == "" && clock.code != "" {
			p.Code = clock.code
			if enriched, err := domain.EncodePayload(p); err == nil {
				payload = enriched
			}
		}
	}

	ev := &domain.Event{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		UserID:      userID,
		Type:        eventType,
		TimestampMS: ts,
		Payload:     payload,
		CreatedAt:   now,
	}

	select {
	case r.queue <- ev:
	default:
		return r.drop(sessionID, eventType, "queue full")
	}

	clock.lastMS = ts
	r.queuedN.Add(1)
	return queued(ev.ID, ts)
}

// RecordPayload encodes a typed payload and records it.
func (r *Recorder) RecordPayload(sessionID, userID string, p domain.Payload) Result {
	raw, err := domain.EncodePayload(p)
	if err != nil {
		return r.reject(sessionID, p.EventType(), err)
	}
	return r.Record(sessionID, userID, p.EventType(), raw)
}

func (r *Recorder) reject(sessionID string, eventType domain.EventType, err error) Result {
	r.rejectedN.Add(1)
	r.metrics.EventDropped("rejected")
	r.logger.Warn("Event rejected", "session_id", sessionID, "event_type", eventType, "error", err)
	return rejected(err.Error())
}

func (r *Recorder) drop(sessionID string, eventType domain.EventType, reason string) Result {
	r.droppedN.Add(1)
	r.metrics.EventDropped(reason)
	r.logger.Warn("Event dropped", "session_id", sessionID, "event_type", eventType, "reason", reason)
	return dropped(reason)
}

// run appends queued events one at a time. Each event gets a single attempt.
func (r *Recorder) run() {
	defer close(r.done)

	for ev := range r.queue {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.AppendTimeout)
		_, err := r.store.Append(ctx, ev)
		cancel()
		elapsed := time.Since(start)

		if err != nil {
			r.failedN.Add(1)
			r.metrics.AppendFailed(elapsed.Seconds())
			r.logger.Warn("Event append failed, discarding",
				"session_id", ev.SessionID,
				"event_type", ev.Type,
				"timestamp_ms", ev.TimestampMS,
				"error", err,
			)
			continue
		}

		r.persistedN.Add(1)
		r.metrics.EventRecorded(string(ev.Type), elapsed.Seconds())
		if elapsed > 100*time.Millisecond {
			r.logger.Warn("Slow event append", "session_id", ev.SessionID, "duration_ms", elapsed.Milliseconds())
		}
	}
}

// Close stops accepting events and waits for queued appends to finish or
// for ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	remaining := len(r.queue)
	close(r.queue)
	r.mu.Unlock()

	r.logger.Info("Recorder closing", "queue_remaining", remaining)

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("Recorder shutdown timeout", "queue_remaining", len(r.queue))
		return ctx.Err()
	}
}

// Stats returns a snapshot of recorder counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	sessions := len(r.sessions)
	r.mu.Unlock()

	return Stats{
		Queued:    r.queuedN.Load(),
		Persisted: r.persistedN.Load(),
		Failed:    r.failedN.Load(),
		Dropped:   r.droppedN.Load(),
		Rejected:  r.rejectedN.Load(),
		QueueLen:  len(r.queue),
		QueueCap:  cap(r.queue),
		Sessions:  sessions,
	}
}
