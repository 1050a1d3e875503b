// Package core provides the HTTP chassis for the booking relay.
// It creates a chi router compatible with both standard HTTP (for local dev)
// and AWS Lambda Proxy Integration (via chiadapter). It enforces cross-cutting
// concerns such as panic recovery, request logging and metrics before requests
// reach the relay handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bookingrelay/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records API request latency and count.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of handlers on the root router. Handler
// packages provide registrars so core never imports them.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the relay API, allowing for easy
// injection during testing.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// RouteRegistrars are applied in order by MountRoutes.
	RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates its dependencies and prepares the router. The caller
// appends RouteRegistrars and then calls MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	return s, nil
}

// Handler returns the http.Handler interface for the router.
// Used by http.Server (local) and chiadapter.New (Lambda).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources. The relay holds no pools or queues, so
// this only logs; it exists so main can treat every runtime mode alike.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
