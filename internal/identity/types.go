package identity

import (
	"errors"
	"strings"
	"time"
)

// Role determines what an authenticated identity may see and do.
type Role string

// Portal roles.
const (
	RolePlayer     Role = "Player"
	RoleCoach      Role = "Coach"
	RoleJournalist Role = "Journalist"
	RoleDeveloper  Role = "Developer"
)

// Roles lists every valid role.
var Roles = []Role{RolePlayer, RoleCoach, RoleJournalist, RoleDeveloper}

// ParseRole normalises and validates a role string. Matching is
// case-insensitive; the canonical capitalised form is returned.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", ErrInvalidRole
}

// Identity represents an account in the identity store.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose in JSON
	Role         Role      `json:"role"`
	TOTPSecret   string    `json:"-"` // Base32 secret, empty when 2FA was never set up
	TOTPEnabled  bool      `json:"totp_enabled"`
	// RecoveryCodes holds the unused one-time recovery codes.
	// Stored as JSON in SQLite, never exposed over the API after enrollment.
	RecoveryCodes []string  `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RefreshSession is the server-side record behind a refresh token.
// Sessions are never deleted on revocation: RevokedAt is set and the row
// is retained as history.
type RefreshSession struct {
	ID         string     `json:"id"`
	IdentityID string     `json:"identity_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	IP         string     `json:"ip,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
}

// Active reports whether the session can still be redeemed at the given
// instant: not revoked and not past its expiry.
func (s *RefreshSession) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// ClientMeta carries request metadata recorded alongside sessions and
// audit events.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Role         Role   `json:"role"`
}

// Sentinel errors for identity operations.
var (
	// ErrInvalidCredentials is returned when the username or password is wrong.
	// Unknown-username and wrong-password lookups are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTwoFactorRequired is returned at login when the account has 2FA
	// enabled and the supplied code is missing or wrong.
	ErrTwoFactorRequired = errors.New("two-factor code required")

	// ErrInvalidCode is returned when a TOTP code fails enrollment verification.
	ErrInvalidCode = errors.New("invalid two-factor code")

	// ErrNoSecretPending is returned when enrollment verification is attempted
	// before setup generated a secret.
	ErrNoSecretPending = errors.New("no two-factor secret pending")

	// ErrRefreshInvalid is returned when a refresh token is malformed, expired,
	// revoked, or already used.
	ErrRefreshInvalid = errors.New("refresh token invalid")

	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidRole is returned for a role outside the known set.
	ErrInvalidRole = errors.New("invalid role")

	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrStoreUnavailable wraps persistence failures surfaced to callers.
	ErrStoreUnavailable = errors.New("identity store unavailable")
)
