package broadcast

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubFansOut(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	a, _ := h.Subscribe(0)
	b, _ := h.Subscribe(0)
	defer a.Close()
	defer b.Close()

	if err := h.Publish(context.Background(), domain.Problem{ID: "p1", Title: "Counter"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	for _, sub := range []*Subscription{a, b} {
		select {
		case msg := <-sub.C:
			if msg.Problem.ID != "p1" || msg.ID != 1 || msg.Type != "problem" {
				t.Fatalf("message = %+v", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive broadcast")
		}
	}
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	sub, _ := h.Subscribe(0)
	defer sub.Close()

	for i := 0; i < subscriberBuffer+5; i++ {
		_ = h.Publish(context.Background(), domain.Problem{ID: "p"})
	}
	if got := len(sub.C); got != subscriberBuffer {
		t.Fatalf("buffered %d, want %d", got, subscriberBuffer)
	}
}

func TestHubReplaysMissedMessages(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	for _, id := range []string{"p1", "p2", "p3"} {
		_ = h.Publish(context.Background(), domain.Problem{ID: id})
	}
	sub, missed := h.Subscribe(1)
	defer sub.Close()

	if len(missed) != 2 || missed[0].Problem.ID != "p2" || missed[1].Problem.ID != "p3" {
		t.Fatalf("missed = %+v", missed)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	sub, _ := h.Subscribe(0)
	sub.Close()
	sub.Close()
	if h.Subscribers() != 0 {
		t.Fatalf("subscribers = %d", h.Subscribers())
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("channel still open after Close")
	}
}
