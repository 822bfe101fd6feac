package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/identity"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/middleware"
)

// RegisterRoutes mounts the API. Admin routes are only mounted when
// tokenAuth is non-nil.
func (h *Handler) RegisterRoutes(r chi.Router, tokenAuth *jwtauth.JWTAuth) {
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(h.IsDev, tokenAuth))

		r.Route("/api", func(r chi.Router) {
			r.Post("/sessions", h.CreateSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Post("/events", h.RecordEvent)
				r.Get("/events", h.ListEvents)
				r.Get("/playback", h.Seek)
				r.Get("/analytics", h.SessionAnalytics)
				r.Post("/hints", h.RequestHint)
				r.Post("/evaluate", h.Evaluate)
				r.Post("/pair", h.Pair)
				r.Post("/run", h.Run)
				r.Post("/finalize", h.Finalize)
			})
			r.Get("/dashboard/sessions", h.Dashboard)
			r.Get("/broadcast/stream", h.BroadcastStream)
		})

		r.Route("/ws/sessions/{id}", func(r chi.Router) {
			r.Get("/record", h.RecordStream)
			r.Get("/playback", h.PlaybackStream)
		})
	})

	if tokenAuth == nil {
		return
	}
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(middleware.AdminOnly)
		r.Post("/broadcast", h.PublishProblem)
		r.Delete("/sessions/{id}/events", h.DeleteEvents)
	})
}
