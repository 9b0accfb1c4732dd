// Package api provides the HTTP API for Identity Core.
//
// The surface splits into three groups: /api/auth for credential and token
// flows, /api/player for profile reads and updates, and /api/admin for the
// Developer-only session, user, and audit operations.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/contextawareid/identity-core/internal/audit"
	"github.com/contextawareid/identity-core/internal/identity"
	"github.com/contextawareid/identity-core/internal/infrastructure/config"
	"github.com/contextawareid/identity-core/internal/infrastructure/logging"
	"github.com/contextawareid/identity-core/internal/profile"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Deps contains the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Identity *identity.Service
	Tokens   *identity.TokenManager
	Users    identity.UserRepository
	Sessions identity.SessionRepository
	Profiles profile.Repository
	Audit    audit.Repository
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	config   config.APIConfig
	logger   *logging.Logger
	identity *identity.Service
	tokens   *identity.TokenManager
	users    identity.UserRepository
	sessions identity.SessionRepository
	profiles profile.Repository
	audit    audit.Repository
	version  string

	httpServer *http.Server
}

// New creates a new API server.
func New(deps Deps) (*Server, error) {
	if deps.Identity == nil {
		return nil, fmt.Errorf("identity service is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if deps.Users == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("user and session repositories are required")
	}
	if deps.Profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Server{
		config:   deps.Config,
		logger:   logger.With("component", "api"),
		identity: deps.Identity,
		tokens:   deps.Tokens,
		users:    deps.Users,
		sessions: deps.Sessions,
		profiles: deps.Profiles,
		audit:    deps.Audit,
		version:  deps.Version,
	}, nil
}

// Start begins serving HTTP requests in the background.
func (s *Server) Start() error {
	router := s.buildRouter()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.GetReadTimeout(),
		WriteTimeout: s.config.GetWriteTimeout(),
		IdleTimeout:  s.config.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.config.TLS.Enabled {
			s.logger.Info("starting HTTPS server", "addr", addr)
			err = s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
		} else {
			s.logger.Info("starting HTTP server", "addr", addr)
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
