package app

import (
	"log/slog"
	"net/http"

	"github.com/dgraph-io/ristretto/v2"

	"streamgate/internal/metrics"
	"streamgate/internal/storage"
	"streamgate/internal/transport/http/handler"
	"streamgate/internal/transport/http/middleware"
	"streamgate/internal/transport/http/middleware/auth"
	"streamgate/internal/transport/http/middleware/ratelimit"
)

// RouterOptions configures the HTTP router behavior.
type RouterOptions struct {
	Logger        *slog.Logger
	Storage       storage.Storage
	APIKeyCache   *ristretto.Cache[string, *auth.CachedAPIKey]
	Limiter       *ratelimit.Limiter
	Metrics       *metrics.Collector
	EnableMetrics bool
}

// NewRouter creates and configures the HTTP router with all application routes.
// Returns an http.Handler with middleware applied.
// opts must not be nil - proxy routes require authentication configuration.
func NewRouter(h *handler.Handlers, opts *RouterOptions) http.Handler {
	mux := http.NewServeMux()

	// Public routes (no auth)
	mux.HandleFunc("GET /api/health", h.HealthCheck)

	// Create API key auth middleware for proxy routes (always required)
	apiKeyAuth := auth.APIKeyAuth(opts.Storage, opts.APIKeyCache)
	rateLimit := ratelimit.Middleware(opts.Limiter)

	// Helper to stack auth then rate limiting on a proxy handler.
	proxied := func(fn http.HandlerFunc) http.Handler {
		return apiKeyAuth(rateLimit(fn))
	}

	// Proxy routes (require API key auth)
	mux.Handle("POST /v1/chat/completions", proxied(h.ChatCompletions))
	mux.Handle("GET /v1/models", proxied(h.ListModels))
	mux.Handle("GET /v1/models/{model}", proxied(h.GetModel))

	// Usage and log introspection (require API key auth)
	mux.Handle("GET /api/usage/daily", proxied(h.GetDailyUsage))
	mux.Handle("GET /api/logs", proxied(h.GetRequestLogs))

	// Prometheus scrape endpoint (unauthenticated, opt-in)
	if opts.EnableMetrics && opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	// Apply middleware chain (order: outer to inner)
	var wrapped http.Handler = mux

	// Request logging (if logger provided)
	if opts.Logger != nil {
		wrapped = middleware.RequestLogger(opts.Logger)(wrapped)
	}

	// Request ID (always applied)
	wrapped = middleware.RequestID(wrapped)

	// CORS and security headers (always applied)
	wrapped = middleware.CORS(wrapped)
	wrapped = middleware.SecurityHeaders(wrapped)

	return wrapped
}
