// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/chardb/internal/metrics"
	"github.com/maruel/chardb/internal/records"
	"github.com/maruel/chardb/internal/server/dto"
	"github.com/maruel/chardb/internal/server/handlers"
	"github.com/maruel/chardb/internal/server/ratelimit"
)

// Config holds the server settings.
type Config struct {
	// Version is reported by the health check.
	Version string
	// MaxRequestBodyBytes limits request bodies. 0 means unlimited.
	MaxRequestBodyBytes int64
	// JWTSecret, when set, requires a bearer token on mutating requests.
	JWTSecret []byte
	// Limits rate limits requests per client IP. nil disables rate limiting.
	Limits *ratelimit.Config
	// Metrics, when set, is fed by the request logger and served on /metrics.
	Metrics *metrics.Metrics
}

type server struct {
	cfg *Config
}

// NewRouter creates and configures the HTTP router.
func NewRouter(svc *records.Service, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	s := &server{cfg: cfg}
	mux := &http.ServeMux{}
	ch := handlers.NewCharacterHandler(svc)
	hh := handlers.NewHealthHandler(cfg.Version)

	mux.Handle("GET /{$}", Wrap(hh.Home, cfg))
	mux.Handle("GET /api/health", Wrap(hh.Health, cfg))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	mux.Handle("GET /characters", Wrap(ch.List, cfg))
	mux.Handle("GET /characters/search", Wrap(ch.Search, cfg))
	mux.Handle("PUT /characters/{id}", Wrap(ch.Update, cfg))
	mux.Handle("DELETE /characters/{id}", Wrap(ch.Delete, cfg))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, dto.RouteNotFound(), dto.ErrorCodeNotFound, http.StatusNotFound)
	})

	mws := []func(http.Handler) http.Handler{
		requestContext,
		s.logRequests,
		recoverPanics,
	}
	if cfg.Limits != nil {
		mws = append(mws, rateLimit(cfg.Limits))
	}
	if len(cfg.JWTSecret) != 0 {
		mws = append(mws, requireWriteAuth(cfg.JWTSecret))
	}
	return chain(mux, mws...)
}
