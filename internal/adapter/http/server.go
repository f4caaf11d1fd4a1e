// Package http serves health, readiness and metrics endpoints alongside the
// dashboard JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Options configures the dashboard API surface.
type Options struct {
	// RatePerSec and Burst bound POST requests per client IP.
	RatePerSec     float64
	Burst          int
	AllowedOrigins []string
}

// Server exposes /healthz, /readyz, /metrics and /api/v1.
type Server struct {
	httpServer *http.Server
	limiter    *RateLimiter
	logger     *slog.Logger
}

// NewServer builds the router. api may be nil, in which case only the
// operational endpoints are served.
func NewServer(addr string, ready sharedobs.ReadinessChecker, api Dashboard, opts Options, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		limiter: NewRateLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		logger:  logger,
	}

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	if api != nil {
		h := &apiHandler{api: api, logger: logger}
		r.Route("/api/v1", func(r chi.Router) {
			if len(opts.AllowedOrigins) > 0 {
				r.Use(cors.Handler(cors.Options{
					AllowedOrigins: opts.AllowedOrigins,
					AllowedMethods: []string{"GET", "POST", "OPTIONS"},
					AllowedHeaders: []string{"Accept", "Content-Type"},
					MaxAge:         300,
				}))
			}
			r.Get("/districts", h.listDistricts)
			r.Get("/districts/{district}/talukas", h.listTalukas)
			r.Get("/status", h.status)
			r.With(s.limiter.Limit).Post("/alerts", h.enqueueAlert)
			r.With(s.limiter.Limit).Post("/alerts/demo", h.enqueueDemo)
		})
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline
// and stops the rate limiter's janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}

// ReadinessFunc adapts a function to sharedobs.ReadinessChecker.
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

// AllReady is ready when every non-nil checker is.
func AllReady(checkers ...sharedobs.ReadinessChecker) sharedobs.ReadinessChecker {
	return ReadinessFunc(func(ctx context.Context) error {
		for _, c := range checkers {
			if c == nil {
				continue
			}
			if err := c.CheckReadiness(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
