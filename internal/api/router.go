package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"obd-go-gateway/internal/metrics"
)

// SetupRouter builds the HTTP surface: the subscriber endpoint, health and
// metrics, and the snapshot/history API. Auth middleware guards the
// subscriber-facing routes when enabled; health and metrics stay open for
// probes and scrapers.
func SetupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if h.auth.Enabled() {
		r.Post("/auth/login", h.HandleLogin)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/ws", h.HandleWebSocket)
		r.Get("/api/frame", h.HandleCurrentFrame)
		r.Get("/api/history", h.HandleHistory)
	})

	return r
}
