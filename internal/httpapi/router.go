package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"lang_gateway/internal/metrics"
	"lang_gateway/internal/middleware"
	"lang_gateway/internal/utils"
)

// NewRouter creates the HTTP router of the metering service
func NewRouter(deps *Dependencies) chi.Router {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopMetrics()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(utils.NewLogger("http")))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// Public endpoints
	r.Get("/health", deps.handleHealth)
	r.Handle("/metrics", deps.Metrics.HTTPHandler())

	// Account endpoints, protected with the API key middleware
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyMiddleware(deps.Registry))
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(deps.RateLimiter))
		}

		r.Get("/account", deps.handleAccount)
		r.Get("/account/usage", deps.handleAccountUsage)
		r.Post("/usage", deps.handleTrackUsage)
	})

	return r
}
