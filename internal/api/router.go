package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/VkTheEncoder/Anime4i/internal/api/handler"
	mw "github.com/VkTheEncoder/Anime4i/internal/api/middleware"
	"github.com/VkTheEncoder/Anime4i/internal/config"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	jobHandler *handler.JobHandler,
	healthHandler *handler.HealthHandler,
	eventHandler *handler.EventHandler,
	cfg config.ServerConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)

	// Probes and metrics (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		r.Get("/stats", healthHandler.Stats)

		// Jobs
		r.With(
			mw.RateLimit(cfg.SubmitRPS, cfg.SubmitBurst),
			middleware.Timeout(30*time.Second),
		).Post("/jobs", jobHandler.Submit)
		r.Get("/jobs", jobHandler.List)
		r.Get("/jobs/{id}", jobHandler.Get)
		r.Get("/jobs/{id}/artifact", jobHandler.Artifact)
		r.Delete("/jobs/{id}", jobHandler.Delete)

		// Events
		if eventHandler != nil {
			r.Get("/events", eventHandler.List)
			r.Get("/events/stats", eventHandler.Stats)
			r.Get("/events/stream", eventHandler.Stream)
			r.Get("/events/categories", eventHandler.Categories)
		}
	})

	return otelhttp.NewHandler(r, "hlsgrab",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && p != "/ready"
		}),
	)
}
