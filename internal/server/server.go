// Package server exposes the observer's collections, statistics, and focus
// state over a small REST API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quotio/usage-observer/internal/correlate"
	"github.com/quotio/usage-observer/internal/focus"
	"github.com/quotio/usage-observer/internal/record"
)

// UsageTransfer is the export/import surface delegated to the management
// API. The exported document is an opaque JSON blob; its schema is owned by
// the external API.
type UsageTransfer interface {
	ExportUsage(ctx context.Context) ([]byte, error)
	ImportUsage(ctx context.Context, data []byte) error
}

// StreamStatus reports the realtime subscription state.
type StreamStatus interface {
	IsConnected() bool
}

// Deps are the collaborators the server reads from. The server never
// mutates collections; focus writes go through the coordinator.
type Deps struct {
	Requests     *record.Collection
	Logs         *record.LogCollection
	Engine       *correlate.Engine
	Focus        *focus.Coordinator
	Stream       StreamStatus
	Transfer     UsageTransfer
	FocusEnabled bool
}

// Server is the observer's HTTP API.
type Server struct {
	Router *chi.Mux
	deps   Deps
	logger *slog.Logger
}

// New creates a Server with the standard middleware stack.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "usage-observer")
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/requests", s.handleRequests)
		r.Get("/logs", s.handleLogs)
		r.Get("/focus", s.handleGetFocus)
		r.Put("/focus", s.handleSetFocus)
		r.Delete("/focus", s.handleClearFocus)
		r.Get("/usage/export", s.handleExport)
		r.Post("/usage/import", s.handleImport)
	})

	s.Router = r
	return s
}
