package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/store"
)

// Checker is an optional dependency probed by the readiness endpoint.
type Checker func(ctx context.Context) error

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo     store.Repository
	optional map[string]Checker
	timeout  time.Duration
}

// NewHealthHandler creates a new health handler. Failures of optional checks
// degrade the report without failing readiness.
func NewHealthHandler(repo store.Repository, timeout time.Duration, optional map[string]Checker) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{repo: repo, optional: optional, timeout: timeout}
}

// Live reports that the process is serving.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready returns the health status of the API and its dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["database"] = "unreachable"
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	for name, check := range h.optional {
		if err := check(ctx); err != nil {
			slog.Warn("Optional dependency unhealthy", "dependency", name, "error", err)
			checks[name] = "unreachable"
			if status == "healthy" {
				status = "degraded"
			}
			continue
		}
		checks[name] = "ok"
	}

	JSON(w, statusCode, map[string]any{"status": status, "checks": checks})
}

// RegisterHealth registers the health check routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Ready)
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
}
