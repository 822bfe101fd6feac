package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

type fakeAppender struct {
	mu      sync.Mutex
	events  []domain.Event
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeAppender) Append(_ context.Context, ev *domain.Event) (*domain.Event, error) {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.events = append(f.events, *ev)
	return ev, nil
}

func (f *fakeAppender) snapshot() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Event(nil), f.events...)
}

// fakeClock returns scripted instants in order, repeating the last one.
type fakeClock struct {
	mu    sync.Mutex
	times []time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRecorder(t *testing.T, store Appender, now func() time.Time, queueSize int) *Recorder {
	t.Helper()
	r := New(store, Options{QueueSize: queueSize, Now: now, Logger: quietLogger()})
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func closeRecorder(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func code(s string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"code": s})
	return b
}

func TestRecordComputesSessionRelativeTimestamps(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{times: []time.Time{
		start,
		start.Add(250 * time.Millisecond),
		start.Add(1200 * time.Millisecond),
	}}
	store := &fakeAppender{}
	r := newTestRecorder(t, store, clock.Now, 10)

	r.Begin("s1", "u1", "")
	r1 := r.Record("s1", "u1", domain.EventCodeChange, code("a"))
	r2 := r.Record("s1", "u1", domain.EventCodeChange, code("ab"))
	closeRecorder(t, r)

	if !r1.Accepted() || !r2.Accepted() {
		t.Fatalf("expected both queued, got %v and %v", r1.Status, r2.Status)
	}
	events := store.snapshot()
	if len(events) != 2 {
		t.Fatalf("persisted %d events, want 2", len(events))
	}
	if events[0].TimestampMS != 250 || events[1].TimestampMS != 1200 {
		t.Fatalf("timestamps = %d, %d; want 250, 1200", events[0].TimestampMS, events[1].TimestampMS)
	}
	if events[0].ID != r1.EventID {
		t.Fatalf("event id %q does not match result %q", events[0].ID, r1.EventID)
	}
}

func TestRecordNeverEmitsDecreasingTimestamps(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{times: []time.Time{
		start,
		start.Add(900 * time.Millisecond),
		start.Add(300 * time.Millisecond), // wall clock stepped backwards
		start.Add(-5 * time.Second),
		start.Add(1500 * time.Millisecond),
	}}
	store := &fakeAppender{}
	r := newTestRecorder(t, store, clock.Now, 10)

	r.Begin("s1", "u1", "")
	for i := 0; i < 4; i++ {
		r.Record("s1", "u1", domain.EventCursorMove, json.RawMessage(`{"position":{"line":1,"column":1}}`))
	}
	closeRecorder(t, r)

	events := store.snapshot()
	want := []int64{900, 900, 900, 1500}
	if len(events) != len(want) {
		t.Fatalf("persisted %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.TimestampMS != want[i] {
			t.Errorf("event %d timestamp = %d, want %d", i, ev.TimestampMS, want[i])
		}
	}
}

func TestBeginIsIdempotent(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRecorder(t, &fakeAppender{}, func() time.Time { return start.Add(2 * time.Second) }, 10)

	r.BeginAt("s1", "u1", "starter", start)
	r.BeginAt("s1", "u1", "other", start.Add(time.Second))

	res := r.Record("s1", "u1", domain.EventPause, nil)
	if res.TimestampMS != 2000 {
		t.Fatalf("timestamp = %d, want 2000 (clock must not be reset)", res.TimestampMS)
	}
	if c, _ := r.CurrentCode("s1"); c != "starter" {
		t.Fatalf("shadow code = %q, want starter", c)
	}
}

func TestRecordRejectsMismatchedPayload(t *testing.T) {
	t.Parallel()

	store := &fakeAppender{}
	r := newTestRecorder(t, store, time.Now, 10)

	res := r.Record("s1", "u1", domain.EventCodeChange, json.RawMessage(`{"language":"jsx"}`))
	if res.Outcome != Rejected {
		t.Fatalf("outcome = %v, want rejected", res.Outcome)
	}
	res = r.Record("s1", "u1", domain.EventType("keystroke"), json.RawMessage(`{}`))
	if res.Outcome != Rejected {
		t.Fatalf("outcome = %v, want rejected", res.Outcome)
	}
	closeRecorder(t, r)

	if n := len(store.snapshot()); n != 0 {
		t.Fatalf("rejected events reached the store: %d", n)
	}
	if got := r.Stats().Rejected; got != 2 {
		t.Fatalf("rejected count = %d, want 2", got)
	}
}

func TestStoreFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	store := &fakeAppender{err: errors.New("permission denied")}
	r := newTestRecorder(t, store, time.Now, 10)

	res := r.Record("s1", "u1", domain.EventCodeChange, code("x"))
	if !res.Accepted() {
		t.Fatalf("outcome = %v, want queued", res.Outcome)
	}
	closeRecorder(t, r)

	stats := r.Stats()
	if stats.Failed != 1 || stats.Persisted != 0 {
		t.Fatalf("stats = %+v, want one failure", stats)
	}
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	store := &fakeAppender{block: make(chan struct{}), started: make(chan struct{}, 1)}
	r := New(store, Options{QueueSize: 1, Logger: quietLogger()})

	first := r.Record("s1", "u1", domain.EventCodeChange, code("a"))
	<-store.started // worker holds the first event
	second := r.Record("s1", "u1", domain.EventCodeChange, code("ab"))
	third := r.Record("s1", "u1", domain.EventCodeChange, code("abc"))

	if !first.Accepted() || !second.Accepted() {
		t.Fatalf("first two should queue: %v, %v", first.Status, second.Status)
	}
	if third.Outcome != Dropped || third.Reason != "queue full" {
		t.Fatalf("third = %+v, want dropped for queue full", third)
	}

	close(store.block)
	closeRecorder(t, r)

	if n := len(store.snapshot()); n != 2 {
		t.Fatalf("persisted %d, want 2", n)
	}
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	r := New(&fakeAppender{}, Options{Logger: quietLogger()})
	closeRecorder(t, r)

	res := r.Record("s1", "u1", domain.EventResume, nil)
	if res.Outcome != Dropped {
		t.Fatalf("outcome = %v, want dropped", res.Outcome)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestShadowCodeEnrichesHintRequests(t *testing.T) {
	t.Parallel()

	store := &fakeAppender{}
	r := newTestRecorder(t, store, time.Now, 10)

	r.Begin("s1", "u1", "")
	r.Record("s1", "u1", domain.EventCodeChange, code("function App() {}"))
	r.Record("s1", "u1", domain.EventHintRequest, json.RawMessage(`{"level":1,"penalty":5}`))

	if c, ok := r.CurrentCode("s1"); !ok || c != "function App() {}" {
		t.Fatalf("CurrentCode() = %q, %v", c, ok)
	}
	closeRecorder(t, r)

	events := store.snapshot()
	if len(events) != 2 {
		t.Fatalf("persisted %d, want 2", len(events))
	}
	p, err := events[1].Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	hint := p.(domain.HintRequest)
	if hint.Code != "function App() {}" || hint.Level != 1 {
		t.Fatalf("hint payload = %+v", hint)
	}
}

func TestEndForgetsSession(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(t, &fakeAppender{}, time.Now, 10)
	r.Begin("s1", "u1", "x")
	r.End("s1")
	if _, ok := r.CurrentCode("s1"); ok {
		t.Fatal("session still tracked after End")
	}
}
