// Package api provides the HTTP surface of bricklayd: upload intake,
// job status, result download, cancellation, and health endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/bricklayers/bricklayd/internal/logger"
	"github.com/bricklayers/bricklayd/pkg/api/handlers"
	"github.com/bricklayers/bricklayd/pkg/metrics"
)

// requestIDHeader is honored when the client supplies its own request ID
// and echoed back on every response.
const requestIDHeader = "X-Request-ID"

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET  /                       - Service identification
//   - GET  /health                 - Liveness probe
//   - GET  /metrics                - Prometheus metrics (when enabled)
//   - POST /api/v1/upload          - G-code upload
//   - GET  /api/v1/status/{id}     - Job status
//   - GET  /api/v1/download/{id}   - Processed file download
//   - POST /api/v1/cancel/{id}     - Job cancellation
//   - GET  /api/v1/health          - Liveness probe (versioned alias)
func NewRouter(h *handlers.Handlers, httpMetrics metrics.HTTPMetrics) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(metricsMiddleware(httpMetrics))
	r.Use(middleware.Recoverer)

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	if metrics.IsEnabled() {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Get("/status/{id}", h.Status)
		r.Get("/download/{id}", h.Download)
		r.Post("/cancel/{id}", h.Cancel)
		r.Get("/health", h.Health)
	})

	return r
}

// requestID honors an inbound X-Request-ID header or generates a fresh
// one, binds it (with the client IP) to the logging context, and echoes
// it on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		ctx = logger.WithContext(ctx, logger.NewLogContext(id, r.RemoteAddr))

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isHealthPath returns true for endpoints polled by probes and scrapers.
func isHealthPath(path string) bool {
	return path == "/health" || path == "/api/v1/health" || path == "/metrics"
}

// requestLogger logs request start at DEBUG and completion at INFO,
// demoting probe endpoints to DEBUG to reduce noise.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		logger.DebugCtx(ctx, "API request started",
			"method", r.Method,
			"path", r.URL.Path,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", logger.Duration(start),
		}

		if isHealthPath(r.URL.Path) {
			logger.DebugCtx(ctx, "API request completed", logArgs...)
		} else {
			logger.InfoCtx(ctx, "API request completed", logArgs...)
		}
	})
}

// metricsMiddleware records per-request counters and latency, labeled by
// the matched chi route pattern rather than the raw path.
func metricsMiddleware(m metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}
