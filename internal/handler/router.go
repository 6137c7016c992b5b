package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pesio-ai/be-erp-approvals/internal/auth"
	"github.com/pesio-ai/be-erp-approvals/internal/logger"
	"github.com/pesio-ai/be-erp-approvals/internal/middleware"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds what NewRouter needs besides the API handler.
type RouterConfig struct {
	Verifier       *auth.Verifier
	Log            *logger.Logger
	RequestTimeout time.Duration
	CORSOrigins    []string
	Health         HealthCheck
}

// NewRouter builds the HTTP surface: /health and /metrics are public, the
// API under /api/v1 requires a bearer token.
func NewRouter(api *HTTPHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(&cfg.Log.Logger))
	r.Use(middleware.Recovery(&cfg.Log.Logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				cfg.Log.Warn().Err(err).Msg("Health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Verifier))
		api.Routes(r)
	})
	return r
}
