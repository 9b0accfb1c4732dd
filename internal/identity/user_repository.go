package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRepository defines the interface for identity persistence,
// including two-factor state.
type UserRepository interface {
	Create(ctx context.Context, ident *Identity) error
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByUsername(ctx context.Context, username string) (*Identity, error)
	List(ctx context.Context) ([]Identity, error)
	UpdateRole(ctx context.Context, id string, role Role) error
	// SetTOTPSecret stores a pending (not yet enabled) enrollment secret.
	// Calling it again replaces the previous pending secret.
	SetTOTPSecret(ctx context.Context, id, secret string) error
	// EnableTOTP marks two-factor as enabled and stores the recovery codes.
	EnableTOTP(ctx context.Context, id string, recoveryCodes []string) error
	// ConsumeRecoveryCode atomically removes a matching unused recovery code.
	// Returns false when the code does not match any remaining code.
	ConsumeRecoveryCode(ctx context.Context, id, code string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed identity repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const identityColumns = "id, username, password_hash, role, totp_secret, totp_enabled, recovery_codes, created_at, updated_at"

// Create inserts a new identity. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, ident *Identity) error {
	if ident.ID == "" {
		ident.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	ident.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	ident.UpdatedAt = ident.CreatedAt

	codes, err := marshalRecoveryCodes(ident.RecoveryCodes)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO identities (id, username, password_hash, role, totp_secret, totp_enabled, recovery_codes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ident.ID, ident.Username, ident.PasswordHash, string(ident.Role),
		nullString(ident.TOTPSecret), boolToInt(ident.TOTPEnabled), codes,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("creating identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity by its unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*Identity, error) {
	return r.getIdentity(ctx, "SELECT "+identityColumns+" FROM identities WHERE id = ?", id)
}

// GetByUsername retrieves an identity by username.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*Identity, error) {
	return r.getIdentity(ctx, "SELECT "+identityColumns+" FROM identities WHERE username = ?", username)
}

// List returns all identities ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]Identity, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+identityColumns+" FROM identities ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var idents []Identity
	for rows.Next() {
		ident, err := scanIdentityFrom(rows)
		if err != nil {
			return nil, err
		}
		idents = append(idents, *ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}

	if idents == nil {
		idents = []Identity{}
	}
	return idents, nil
}

// UpdateRole changes an identity's role.
func (r *SQLiteUserRepository) UpdateRole(ctx context.Context, id string, role Role) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"UPDATE identities SET role = ?, updated_at = ? WHERE id = ?",
		string(role), now, id,
	)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTOTPSecret stores a pending enrollment secret. The enabled flag is
// cleared only if two-factor was never enabled; a re-run of setup before
// verification simply replaces the pending secret.
func (r *SQLiteUserRepository) SetTOTPSecret(ctx context.Context, id, secret string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"UPDATE identities SET totp_secret = ?, totp_enabled = 0, recovery_codes = NULL, updated_at = ? WHERE id = ?",
		secret, now, id,
	)
	if err != nil {
		return fmt.Errorf("storing TOTP secret: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// EnableTOTP flips the enabled flag and stores the freshly issued recovery codes.
func (r *SQLiteUserRepository) EnableTOTP(ctx context.Context, id string, recoveryCodes []string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	codes, err := marshalRecoveryCodes(recoveryCodes)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE identities SET totp_enabled = 1, recovery_codes = ?, updated_at = ? WHERE id = ?",
		codes, now, id,
	)
	if err != nil {
		return fmt.Errorf("enabling TOTP: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeRecoveryCode removes a matching recovery code inside a transaction,
// so the same code can only ever be redeemed once.
func (r *SQLiteUserRepository) ConsumeRecoveryCode(ctx context.Context, id, code string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	var stored sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT recovery_codes FROM identities WHERE id = ?", id,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("reading recovery codes: %w", err)
	}

	codes, err := unmarshalRecoveryCodes(stored)
	if err != nil {
		return false, err
	}

	remaining := make([]string, 0, len(codes))
	found := false
	for _, c := range codes {
		if !found && c == code {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}

	if !found {
		return false, nil
	}

	updated, err := marshalRecoveryCodes(remaining)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"UPDATE identities SET recovery_codes = ?, updated_at = ? WHERE id = ?",
		updated, now, id,
	); err != nil {
		return false, fmt.Errorf("consuming recovery code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing recovery code consumption: %w", err)
	}
	return true, nil
}

// Count returns the total number of identities.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting identities: %w", err)
	}
	return count, nil
}

// getIdentity executes a query and scans a single identity result.
func (r *SQLiteUserRepository) getIdentity(ctx context.Context, query string, args ...any) (*Identity, error) {
	return scanIdentityFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanIdentityFrom scans an identity from any scanner (Row or Rows).
func scanIdentityFrom(s scanner) (*Identity, error) {
	var ident Identity
	var totpSecret, recoveryCodes sql.NullString
	var role string
	var totpEnabled int
	var createdAt, updatedAt string

	err := s.Scan(&ident.ID, &ident.Username, &ident.PasswordHash, &role,
		&totpSecret, &totpEnabled, &recoveryCodes,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning identity: %w", err)
	}

	ident.Role = Role(role)
	ident.TOTPEnabled = totpEnabled != 0
	if totpSecret.Valid {
		ident.TOTPSecret = totpSecret.String
	}

	ident.RecoveryCodes, err = unmarshalRecoveryCodes(recoveryCodes)
	if err != nil {
		return nil, err
	}

	ident.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	ident.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &ident, nil
}

// marshalRecoveryCodes serialises codes to the stored JSON form.
// An empty or nil slice stores NULL.
func marshalRecoveryCodes(codes []string) (sql.NullString, error) {
	if len(codes) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshalling recovery codes: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalRecoveryCodes parses the stored JSON form. NULL means no codes.
func unmarshalRecoveryCodes(stored sql.NullString) ([]string, error) {
	if !stored.Valid || stored.String == "" {
		return nil, nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(stored.String), &codes); err != nil {
		return nil, fmt.Errorf("unmarshalling recovery codes: %w", err)
	}
	return codes, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
