package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the route tree and middleware chain.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/2fa/setup", s.handleTwoFactorSetup)
				r.Post("/2fa/verify", s.handleTwoFactorVerify)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/player", func(r chi.Router) {
				r.Get("/", s.handleListPlayers)
				r.Get("/me", s.handleGetOwnProfile)
				r.Put("/me", s.handleUpdateOwnProfile)
				r.Get("/{id}", s.handleGetPlayer)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireDeveloper)
				r.Get("/audit", s.handleListAudit)
				r.Get("/sessions", s.handleListSessions)
				r.Post("/sessions/revoke-all", s.handleRevokeAllSessions)
				r.Post("/sessions/{id}/revoke", s.handleRevokeSession)
				r.Get("/users", s.handleListUsers)
				r.Put("/users/{id}/role", s.handleChangeRole)
			})
		})
	})

	return r
}

// handleHealth reports liveness and version.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
