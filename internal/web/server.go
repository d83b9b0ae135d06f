// Package web provides the HTTP API for browsing table schemas, streaming
// rows, triggering syncs and reading the CVE cache.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/nvdsync/internal/cache"
	"github.com/JonMunkholm/nvdsync/internal/config"
	"github.com/JonMunkholm/nvdsync/internal/core"
	"github.com/JonMunkholm/nvdsync/internal/web/middleware"
)

// healthTimeout bounds the cache ping in /healthz.
const healthTimeout = 2 * time.Second

// Server is the HTTP API server.
type Server struct {
	cfg     *config.Config
	service *core.Service
	lookup  *cache.Lookup // nil when no cache backend is configured
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. lookup may be nil.
func NewServer(cfg *config.Config, service *core.Service, lookup *cache.Lookup) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		lookup:  lookup,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))
		if s.cfg.Rate.Enabled {
			r.Use(middleware.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Handler)
		}

		// Long-running: bounded by the sync timeout, not the request timeout.
		r.Get("/tables/{name}/rows", s.handleStreamRows)
		r.With(s.syncRateLimit()).Post("/sync", s.handleSync)

		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
			}

			r.Get("/tables", s.handleListTables)
			r.Get("/syncs", s.handleSyncHistory)
			r.Get("/cves", s.handleListCVEs)
			r.Get("/cves/{id}", s.handleGetCVE)
		})
	})
}

// syncRateLimit returns the stricter limiter for sync requests, or a no-op
// when rate limiting is disabled.
func (s *Server) syncRateLimit() func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.NewRateLimiter(s.cfg.Rate.SyncLimit).Handler
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	sc := s.cfg.Server
	s.server = &http.Server{
		Addr:         sc.Addr(),
		Handler:      s.router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}

	slog.Info("starting server", "addr", sc.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
