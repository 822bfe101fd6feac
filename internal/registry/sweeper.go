package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

const sweepInterval = 5 * time.Minute

// AbandonCallback is called for each session the sweeper abandons.
type AbandonCallback func(sessionID string)

// StartIdleSweeper runs a background goroutine that abandons in-progress
// sessions with no activity for idleTimeout. It stops when ctx is done.
func (r *Registry) StartIdleSweeper(ctx context.Context, idleTimeout time.Duration, onAbandon AbandonCallback) {
	if idleTimeout <= 0 {
		slog.Info("Idle sweeper disabled")
		return
	}

	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Idle sweeper started", "interval", sweepInterval, "idle_timeout", idleTimeout)

		for {
			select {
			case <-ticker.C:
				r.SweepIdle(ctx, idleTimeout, onAbandon)
			case <-ctx.Done():
				slog.Info("Idle sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// SweepIdle abandons every in-progress session idle for longer than
// idleTimeout and returns how many were abandoned.
func (r *Registry) SweepIdle(ctx context.Context, idleTimeout time.Duration, onAbandon AbandonCallback) int {
	idle, err := r.store.ListIdleSessions(ctx, r.now().Add(-idleTimeout))
	if err != nil {
		slog.Error("Idle sweeper failed to list sessions", "error", err)
		return 0
	}
	if len(idle) == 0 {
		return 0
	}

	slog.Info("Idle sweeper found sessions", "count", len(idle))

	abandoned := 0
	for _, sess := range idle {
		if _, err := r.Finalize(ctx, sess.ID, domain.StatusAbandoned); err != nil {
			// A participant who submitted between list and finalize is not an error.
			if errors.Is(err, ErrInvalidTransition) {
				slog.Debug("Idle sweeper skipped session", "session_id", sess.ID, "error", err)
				continue
			}
			slog.Warn("Idle sweeper failed to abandon session", "session_id", sess.ID, "error", err)
			continue
		}
		abandoned++
		if onAbandon != nil {
			onAbandon(sess.ID)
		}
	}

	slog.Info("Idle sweeper completed", "abandoned", abandoned)
	return abandoned
}
