// Package core provides the API chassis: a chi router with the
// cross-cutting middleware chain (recovery, request IDs, logging,
// security headers) and the standard JSON response envelope, applied
// before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eyezen/internal/config"
)

// Server encapsulates the HTTP surface dependencies, allowing injection
// during testing and distinct configuration per environment.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	router *chi.Mux
}

// NewServer initializes the chassis and middleware chain. The caller
// mounts domain routes afterwards via Router(); this separation lets
// tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}

	s.router.Use(s.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(SecurityHeaders)
	s.router.Use(RequestLogger(logger))

	s.mountHealth()

	return s, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs graceful termination of server-owned resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
