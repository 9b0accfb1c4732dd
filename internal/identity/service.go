package identity

import (
	"context"
	"fmt"
	"regexp"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/contextawareid/identity-core/internal/audit"
	"github.com/contextawareid/identity-core/internal/infrastructure/logging"
)

// Audit action names emitted by the service.
const (
	ActionRegister      = "register"
	ActionLogin         = "login"
	ActionRefresh       = "refresh"
	ActionLogout        = "logout"
	ActionTwoFactorOn   = "two_factor_enabled"
	ActionRevokeSession = "admin_revoke_session"
	ActionRevokeAll     = "admin_revoke_all_sessions"
	ActionChangeRole    = "admin_change_role"
)

// usernamePattern constrains usernames to a portable, log-safe charset.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{2,31}$`)

// qrImageSize is the pixel size of the enrollment QR code.
const qrImageSize = 256

// ProfileProvisioner creates the domain profile that backs a new Player
// account. Wired to the profile package at startup.
type ProfileProvisioner interface {
	CreateForIdentity(ctx context.Context, identityID string) error
}

// AuditRecorder receives security events. Implementations must never block.
type AuditRecorder interface {
	Record(entry audit.Entry)
}

// TOTPEnrollment is the result of starting two-factor setup.
type TOTPEnrollment struct {
	Secret string
	URI    string
	QRPNG  []byte
}

// ServiceDeps bundles the collaborators of Service.
type ServiceDeps struct {
	Users      UserRepository
	Sessions   SessionRepository
	Tokens     *TokenManager
	Profiles   ProfileProvisioner // optional
	Recorder   AuditRecorder      // optional
	Logger     *logging.Logger
	TOTPIssuer string
}

// Service orchestrates authentication flows: registration, login with
// optional two-factor, token rotation, logout, enrollment, and the admin
// session/role operations.
type Service struct {
	users      UserRepository
	sessions   SessionRepository
	tokens     *TokenManager
	profiles   ProfileProvisioner
	recorder   AuditRecorder
	logger     *logging.Logger
	totpIssuer string
}

// NewService creates a Service from its dependencies.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		users:      deps.Users,
		sessions:   deps.Sessions,
		tokens:     deps.Tokens,
		profiles:   deps.Profiles,
		recorder:   deps.Recorder,
		logger:     logger,
		totpIssuer: deps.TOTPIssuer,
	}
}

// record emits an audit event if a recorder is wired.
func (s *Service) record(entry audit.Entry) {
	if s.recorder != nil {
		s.recorder.Record(entry)
	}
}

// Register creates a new identity. For Player accounts a player profile is
// provisioned alongside.
func (s *Service) Register(ctx context.Context, username, password string, role Role, meta ClientMeta) (*Identity, error) {
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-32 characters (letters, digits, '_', '.', '-')", ErrInvalidCredentials)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidCredentials)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	ident := &Identity{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, ident); err != nil {
		return nil, err
	}

	if role == RolePlayer && s.profiles != nil {
		if err := s.profiles.CreateForIdentity(ctx, ident.ID); err != nil {
			return nil, fmt.Errorf("provisioning player profile: %w", err)
		}
	}

	s.logger.Info("identity registered", "identity_id", ident.ID, "role", string(role))
	s.record(audit.Entry{
		ActorID:   ident.ID,
		Action:    ActionRegister,
		Resource:  ident.ID,
		Outcome:   audit.OutcomeSuccess,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]string{"role": string(role)},
	})

	return ident, nil
}

// Login authenticates a username/password pair, enforces two-factor when
// enabled, and issues a fresh token pair.
//
// When two-factor is enabled the code is checked as TOTP first; only a
// code that fails TOTP verification is considered as a recovery code.
// Missing and wrong codes both return ErrTwoFactorRequired so a login
// response never reveals whether a code was close.
func (s *Service) Login(ctx context.Context, username, password, code string, meta ClientMeta) (*TokenPair, error) {
	ident, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		s.auditLoginFailure(username, "unknown_username", meta)
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, ident.PasswordHash)
	if err != nil || !ok {
		s.auditLoginFailure(username, "wrong_password", meta)
		return nil, ErrInvalidCredentials
	}

	if ident.TOTPEnabled {
		if code == "" {
			s.auditLoginFailure(username, "two_factor_missing", meta)
			return nil, ErrTwoFactorRequired
		}
		if !VerifyTOTP(ident.TOTPSecret, code, time.Now()) {
			consumed, err := s.users.ConsumeRecoveryCode(ctx, ident.ID, code)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
			}
			if !consumed {
				s.auditLoginFailure(username, "two_factor_wrong", meta)
				return nil, ErrTwoFactorRequired
			}
			s.logger.Info("recovery code redeemed", "identity_id", ident.ID)
		}
	}

	pair, err := s.issuePair(ctx, ident, meta)
	if err != nil {
		return nil, err
	}

	s.record(audit.Entry{
		ActorID:   ident.ID,
		Action:    ActionLogin,
		Resource:  ident.ID,
		Outcome:   audit.OutcomeSuccess,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	return pair, nil
}

func (s *Service) auditLoginFailure(username, reason string, meta ClientMeta) {
	s.record(audit.Entry{
		Action:    ActionLogin,
		Outcome:   audit.OutcomeFailure,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]string{"username": username, "reason": reason},
	})
}

// issuePair creates a refresh session and signs both tokens for it.
func (s *Service) issuePair(ctx context.Context, ident *Identity, meta ClientMeta) (*TokenPair, error) {
	sess := &RefreshSession{
		IdentityID: ident.ID,
		ExpiresAt:  time.Now().UTC().Add(s.tokens.RefreshTTL()),
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return s.signPair(ident, sess.ID)
}

func (s *Service) signPair(ident *Identity, sessionID string) (*TokenPair, error) {
	access, err := s.tokens.SignAccess(ident.ID, ident.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.SignRefresh(ident.ID, sessionID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		Role:         ident.Role,
	}, nil
}

// Refresh redeems a refresh token for a new pair. The presented session is
// revoked and replaced in one transaction, so each refresh token can only
// ever be redeemed once.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrRefreshInvalid
	}

	sess, err := s.sessions.GetByID(ctx, claims.ID)
	if err != nil {
		return nil, ErrRefreshInvalid
	}
	if !sess.Active(time.Now()) {
		return nil, ErrRefreshInvalid
	}

	ident, err := s.users.GetByID(ctx, sess.IdentityID)
	if err != nil {
		return nil, ErrRefreshInvalid
	}

	next := &RefreshSession{
		IdentityID: ident.ID,
		ExpiresAt:  time.Now().UTC().Add(s.tokens.RefreshTTL()),
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.sessions.Rotate(ctx, sess.ID, next); err != nil {
		return nil, err
	}

	pair, err := s.signPair(ident, next.ID)
	if err != nil {
		return nil, err
	}

	s.record(audit.Entry{
		ActorID:   ident.ID,
		Action:    ActionRefresh,
		Resource:  next.ID,
		Outcome:   audit.OutcomeSuccess,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	return pair, nil
}

// Logout revokes the session behind a refresh token, best effort.
// It always succeeds: a malformed, expired, or already revoked token
// leaves the client in the desired logged-out state either way.
func (s *Service) Logout(ctx context.Context, refreshToken string, meta ClientMeta) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return
	}

	if err := s.sessions.Revoke(ctx, claims.ID); err != nil {
		s.logger.Debug("logout revocation skipped", "session_id", claims.ID, "error", err)
		return
	}

	s.record(audit.Entry{
		ActorID:   claims.Subject,
		Action:    ActionLogout,
		Resource:  claims.ID,
		Outcome:   audit.OutcomeSuccess,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
}

// BeginTOTPEnrollment generates and stores a fresh pending secret, and
// returns the provisioning URI plus a QR PNG of it. Restartable: calling
// it again replaces any previous pending secret.
func (s *Service) BeginTOTPEnrollment(ctx context.Context, identityID string) (*TOTPEnrollment, error) {
	ident, err := s.users.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	secret, err := GenerateTOTPSecret()
	if err != nil {
		return nil, err
	}

	if err := s.users.SetTOTPSecret(ctx, ident.ID, secret); err != nil {
		return nil, err
	}

	uri := ProvisionURI(s.totpIssuer, ident.Username, secret)
	png, err := qrcode.Encode(uri, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("encoding QR code: %w", err)
	}

	return &TOTPEnrollment{Secret: secret, URI: uri, QRPNG: png}, nil
}

// VerifyTOTPEnrollment checks a code against the pending secret, enables
// two-factor, and returns the one-time recovery codes. The codes are
// returned exactly once; afterwards only their consumption is possible.
func (s *Service) VerifyTOTPEnrollment(ctx context.Context, identityID, code string, meta ClientMeta) ([]string, error) {
	ident, err := s.users.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	if ident.TOTPSecret == "" {
		return nil, ErrNoSecretPending
	}

	if !VerifyTOTP(ident.TOTPSecret, code, time.Now()) {
		return nil, ErrInvalidCode
	}

	codes, err := GenerateRecoveryCodes()
	if err != nil {
		return nil, err
	}

	if err := s.users.EnableTOTP(ctx, ident.ID, codes); err != nil {
		return nil, err
	}

	s.logger.Info("two-factor enabled", "identity_id", ident.ID)
	s.record(audit.Entry{
		ActorID:   ident.ID,
		Action:    ActionTwoFactorOn,
		Resource:  ident.ID,
		Outcome:   audit.OutcomeSuccess,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})

	return codes, nil
}

// RevokeSession revokes a single session on behalf of an admin actor.
func (s *Service) RevokeSession(ctx context.Context, actorID, sessionID string, meta ClientMeta) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}

	s.record(audit.Entry{
		ActorID:   actorID,
		Action:    ActionRevokeSession,
		Resource:  sessionID,
		Outcome:   audit.OutcomeSuccess,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	return nil
}

// RevokeAllSessions revokes every active session of an identity.
func (s *Service) RevokeAllSessions(ctx context.Context, actorID, identityID string, meta ClientMeta) error {
	if _, err := s.users.GetByID(ctx, identityID); err != nil {
		return err
	}

	if err := s.sessions.RevokeAllForIdentity(ctx, identityID); err != nil {
		return err
	}

	s.record(audit.Entry{
		ActorID:   actorID,
		Action:    ActionRevokeAll,
		Resource:  identityID,
		Outcome:   audit.OutcomeSuccess,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	return nil
}

// ChangeRole updates an identity's role. Authorization (Developer only)
// is enforced at the API boundary.
func (s *Service) ChangeRole(ctx context.Context, actorID, identityID string, role Role, meta ClientMeta) error {
	if err := s.users.UpdateRole(ctx, identityID, role); err != nil {
		return err
	}

	s.logger.Info("role changed", "identity_id", identityID, "role", string(role), "actor_id", actorID)
	s.record(audit.Entry{
		ActorID:   actorID,
		Action:    ActionChangeRole,
		Resource:  identityID,
		Outcome:   audit.OutcomeSuccess,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]string{"new_role": string(role)},
	})
	return nil
}
