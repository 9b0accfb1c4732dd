package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims carried by a short-lived access token.
// Subject is the identity ID; Role is embedded so authorization checks
// need no store lookup while the token is valid.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// RefreshClaims are the claims carried by a refresh token.
// Subject is the identity ID and ID (jti) is the server-side session ID.
// Redeeming a refresh token always goes through the session store.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// TokenManager signs and verifies the two token families.
// Access and refresh tokens use distinct HMAC secrets so one can never
// be presented in place of the other.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenManager creates a TokenManager with the given secrets and lifetimes.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// RefreshTTL returns the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// SignAccess creates a signed access token for the identity.
func (m *TokenManager) SignAccess(identityID string, role Role) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.accessSecret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// SignRefresh creates a signed refresh token bound to a stored session.
func (m *TokenManager) SignRefresh(identityID, sessionID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// ParseAccess validates an access token's signature and expiry and returns
// its claims. No session lookup happens here: access tokens stay valid
// until natural expiry even after the backing session is revoked.
func (m *TokenManager) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return m.accessSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("access token not valid")
	}
	return claims, nil
}

// ParseRefresh validates a refresh token's signature and expiry and returns
// its claims. Callers must still check the referenced session in the store.
func (m *TokenManager) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return m.refreshSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
	}
	if !token.Valid || claims.ID == "" {
		return nil, ErrRefreshInvalid
	}
	return claims, nil
}
