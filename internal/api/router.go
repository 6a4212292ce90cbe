package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	ipLimiter := NewClientLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst)

	// Global middleware
	r.Use(RequestLogger(s.config.Verbose))
	r.Use(Recoverer)
	r.Use(PrometheusMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Ingest path, rate limited per client
		r.Group(func(r chi.Router) {
			r.Use(RateLimitByIP(ipLimiter))
			r.Post("/events", s.handleSubmitEvent)
		})

		r.Get("/alerts/{id}", s.handleGetAlert)

		r.Route("/issues", func(r chi.Router) {
			r.Get("/", s.handleListIssues)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetIssue)
				r.Post("/alerts", s.handleLinkAlerts)
				r.Delete("/alerts", s.handleUnlinkAlerts)
				r.Post("/close", s.handleCloseIssue)
			})
		})

		r.Route("/heartbeats", func(r chi.Router) {
			r.Post("/", s.handleHeartbeat)
			r.Get("/", s.handleListHeartbeats)
			r.Delete("/{origin}", s.handleDeleteHeartbeat)
		})
	})

	// Health check (public, no rate limit)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		OK(w, map[string]string{"status": "ok"})
	})

	return r
}
