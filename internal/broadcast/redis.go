package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

// RedisRelay publishes problems on Channel and feeds messages received on
// it into a Hub, so every server instance reaches its own subscribers.
type RedisRelay struct {
	rdb    *redis.Client
	hub    *Hub
	logger *slog.Logger
}

// NewRedisRelay connects hub to rdb.
func NewRedisRelay(rdb *redis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{rdb: rdb, hub: hub, logger: logger}
}

// Publish sends p to all instances. Local subscribers receive it through Run.
func (r *RedisRelay) Publish(ctx context.Context, p domain.Problem) error {
	payload, err := json.Marshal(Message{Type: "problem", Problem: p, PublishedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	if err := r.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// Run relays channel messages into the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.rdb.Subscribe(ctx, Channel)
	defer func() {
		if err := sub.Close(); err != nil {
			r.logger.Warn("failed to close broadcast subscription", "error", err)
		}
	}()

	r.logger.Info("Broadcast relay started", "channel", Channel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Broadcast relay shutting down")
			return
		case m, ok := <-ch:
			if !ok {
				r.logger.Info("Broadcast channel closed, shutting down")
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("dropping malformed broadcast", "error", err)
				continue
			}
			r.hub.deliver(msg)
		}
	}
}
