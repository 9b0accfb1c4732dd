package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/contextawareid/identity-core/internal/identity"
	"github.com/contextawareid/identity-core/internal/profile"
)

// Error is the standard error response envelope.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned by the API.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeNotFound          = "not_found"
	ErrCodeUnauthorized      = "unauthorised"
	ErrCodeForbidden         = "forbidden"
	ErrCodeConflict          = "conflict"
	ErrCodeInternalError     = "internal_error"
	ErrCodeValidation        = "validation_error"
	ErrCodeTwoFactorRequired = "two_factor_required"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
	}
}

// writeError writes a standard error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// writeServiceError maps domain errors to HTTP responses. Anything not
// recognised becomes a 500 without leaking detail.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
	case errors.Is(err, identity.ErrTwoFactorRequired):
		writeError(w, http.StatusUnauthorized, ErrCodeTwoFactorRequired, "two-factor code required")
	case errors.Is(err, identity.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid two-factor code")
	case errors.Is(err, identity.ErrNoSecretPending):
		writeBadRequest(w, "two-factor setup has not been started")
	case errors.Is(err, identity.ErrRefreshInvalid):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "refresh token invalid")
	case errors.Is(err, identity.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, ErrCodeConflict, "username already exists")
	case errors.Is(err, identity.ErrInvalidRole):
		writeBadRequest(w, "invalid role")
	case errors.Is(err, identity.ErrForbidden):
		writeForbidden(w, "forbidden")
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, profile.ErrNotFound):
		writeNotFound(w, "not found")
	case errors.Is(err, profile.ErrInvalidField):
		writeBadRequest(w, "invalid profile field")
	default:
		writeInternalError(w)
	}
}
