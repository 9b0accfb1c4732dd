package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/contextawareid/identity-core/internal/audit"
	"github.com/contextawareid/identity-core/internal/identity"
)

// handleListAudit returns a filtered, paginated slice of the audit trail.
// GET /api/admin/audit?actor_id=&action=&outcome=&limit=&offset=
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		ActorID: q.Get("actor_id"),
		Action:  q.Get("action"),
		Outcome: q.Get("outcome"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))   //nolint:errcheck // zero falls back to default
	filter.Offset, _ = strconv.Atoi(q.Get("offset")) //nolint:errcheck // zero falls back to default

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListSessions lists refresh sessions, revoked history included
// unless active=true is requested.
// GET /api/admin/sessions?identity_id=&active=
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := identity.SessionFilter{
		IdentityID: q.Get("identity_id"),
		ActiveOnly: q.Get("active") == "true",
	}

	sessions, err := s.sessions.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing sessions", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleRevokeSession revokes one session. Revoking an already revoked
// session succeeds without change.
// POST /api/admin/sessions/{id}/revoke
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := s.identity.RevokeSession(r.Context(), actorFrom(r).ID, sessionID, clientMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "session_id": sessionID})
}

type revokeAllRequest struct {
	IdentityID string `json:"identity_id"`
}

// handleRevokeAllSessions revokes every active session of one identity.
// POST /api/admin/sessions/revoke-all
func (s *Server) handleRevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	var req revokeAllRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IdentityID == "" {
		writeBadRequest(w, "identity_id is required")
		return
	}

	if err := s.identity.RevokeAllSessions(r.Context(), actorFrom(r).ID, req.IdentityID, clientMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "identity_id": req.IdentityID})
}

// handleListUsers lists all identities.
// GET /api/admin/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("listing users", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// handleChangeRole updates an identity's role.
// PUT /api/admin/users/{id}/role
func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	role, err := identity.ParseRole(req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	identityID := chi.URLParam(r, "id")
	if err := s.identity.ChangeRole(r.Context(), actorFrom(r).ID, identityID, role, clientMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"identity_id": identityID, "role": role})
}
