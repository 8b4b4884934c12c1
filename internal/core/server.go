// Package core provides the API chassis for the StudyPal backend: router
// construction, the global middleware chain, the response envelope, and
// caller identity resolution. Cross-cutting concerns live here so domain
// handlers stay small.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studypal/internal/config"
	"studypal/internal/types"
)

// SessionResolver resolves bearer tokens to sessions. Implemented by
// db.SessionRepo.
type SessionResolver interface {
	GetByToken(ctx context.Context, token string) (*types.Session, error)
}

// Pinger reports backend liveness for the health endpoint. Implemented by
// *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server encapsulates the router and the dependencies the middleware chain
// needs, allowing injection during testing.
type Server struct {
	Config   *config.Config
	Logger   *slog.Logger
	Sessions SessionResolver
	DB       Pinger

	// V1RouteRegistrars mount domain handlers under /v1. Populated by the
	// application entry point; the indirection avoids import cycles
	// between core and handler packages.
	V1RouteRegistrars []func(chi.Router)
	// WebhookRegistrars mount provider intake routes under /webhooks,
	// outside the identity middleware.
	WebhookRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes the router and prepares the server for route
// mounting. Fails fast on missing critical dependencies.
func NewServer(cfg *config.Config, sessions SessionResolver, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		Sessions: sessions,
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
