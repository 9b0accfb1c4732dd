package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/contextawareid/identity-core/internal/identity"
)

// decodeJSON decodes a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// handleRegister creates a new identity.
// POST /api/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	role, err := identity.ParseRole(req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	ident, err := s.identity.Register(r.Context(), req.Username, req.Password, role, clientMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       ident.ID,
		"username": ident.Username,
		"role":     ident.Role,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

// handleLogin authenticates and issues a token pair.
// POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pair, err := s.identity.Login(r.Context(), req.Username, req.Password, req.Code, clientMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh rotates a refresh token into a new pair.
// POST /api/auth/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pair, err := s.identity.Refresh(r.Context(), req.RefreshToken, clientMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the presented refresh token's session, best effort.
// Always responds 200 so clients can discard tokens unconditionally.
// POST /api/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.identity.Logout(r.Context(), req.RefreshToken, clientMeta(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleTwoFactorSetup starts (or restarts) TOTP enrollment for the caller.
// POST /api/auth/2fa/setup
func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	enrollment, err := s.identity.BeginTOTPEnrollment(r.Context(), actorFrom(r).ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"secret":      enrollment.Secret,
		"otpauth_uri": enrollment.URI,
		"qr_png":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(enrollment.QRPNG),
	})
}

type twoFactorVerifyRequest struct {
	Code string `json:"code"`
}

// handleTwoFactorVerify confirms enrollment and returns the one-time
// recovery codes. This is the only response that ever carries them.
// POST /api/auth/2fa/verify
func (s *Server) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req twoFactorVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	codes, err := s.identity.VerifyTOTPEnrollment(r.Context(), actorFrom(r).ID, req.Code, clientMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":        true,
		"recovery_codes": codes,
	})
}
