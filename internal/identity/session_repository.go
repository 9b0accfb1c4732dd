package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionFilter narrows admin session listings.
type SessionFilter struct {
	IdentityID string
	ActiveOnly bool
}

// SessionRepository defines the interface for refresh session persistence.
//
// Sessions are retained as history: revocation sets revoked_at instead of
// deleting the row.
type SessionRepository interface {
	Create(ctx context.Context, sess *RefreshSession) error
	GetByID(ctx context.Context, id string) (*RefreshSession, error)
	// Rotate revokes the old session and creates its replacement in one
	// transaction. Returns ErrRefreshInvalid when the old session was
	// already revoked, so concurrent redemptions of the same token cannot
	// both succeed.
	Rotate(ctx context.Context, oldID string, next *RefreshSession) error
	// Revoke marks a session revoked. Revoking an already revoked session
	// is a no-op; a missing session returns ErrNotFound.
	Revoke(ctx context.Context, id string) error
	// RevokeAllForIdentity revokes every active session of an identity.
	RevokeAllForIdentity(ctx context.Context, identityID string) error
	List(ctx context.Context, filter SessionFilter) ([]RefreshSession, error)
}

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

const sessionColumns = "id, identity_id, created_at, expires_at, revoked_at, ip, user_agent"

// Create inserts a new refresh session. The ID is generated if empty.
func (r *SQLiteSessionRepository) Create(ctx context.Context, sess *RefreshSession) error {
	if err := r.insertSession(ctx, r.db.ExecContext, sess); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// execer abstracts sql.DB and sql.Tx for inserts.
type execer func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (r *SQLiteSessionRepository) insertSession(ctx context.Context, exec execer, sess *RefreshSession) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	_, err := exec(ctx,
		`INSERT INTO refresh_sessions (id, identity_id, created_at, expires_at, revoked_at, ip, user_agent)
		 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		sess.ID, sess.IdentityID,
		sess.CreatedAt.UTC().Format(time.RFC3339),
		sess.ExpiresAt.UTC().Format(time.RFC3339),
		nullString(sess.IP), nullString(sess.UserAgent),
	)
	return err
}

// GetByID retrieves a session by ID, revoked or not.
func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (*RefreshSession, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM refresh_sessions WHERE id = ?", id)
	return scanSessionFrom(row)
}

// Rotate atomically revokes the redeemed session and inserts its successor.
// The UPDATE is guarded on revoked_at IS NULL; zero rows affected means a
// concurrent redemption won the race and this one fails.
func (r *SQLiteSessionRepository) Rotate(ctx context.Context, oldID string, next *RefreshSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := tx.ExecContext(ctx,
		"UPDATE refresh_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL",
		now, oldID,
	)
	if err != nil {
		return fmt.Errorf("revoking rotated session: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRefreshInvalid
	}

	if err := r.insertSession(ctx, tx.ExecContext, next); err != nil {
		return fmt.Errorf("creating rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// Revoke marks a session revoked. Idempotent for already revoked sessions.
func (r *SQLiteSessionRepository) Revoke(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"UPDATE refresh_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL",
		now, id,
	)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows > 0 {
		return nil
	}

	// Zero rows: either already revoked (fine) or missing (ErrNotFound).
	var exists int
	err = r.db.QueryRowContext(ctx,
		"SELECT 1 FROM refresh_sessions WHERE id = ?", id,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	return nil
}

// RevokeAllForIdentity revokes every active session of an identity.
func (r *SQLiteSessionRepository) RevokeAllForIdentity(ctx context.Context, identityID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := r.db.ExecContext(ctx,
		"UPDATE refresh_sessions SET revoked_at = ? WHERE identity_id = ? AND revoked_at IS NULL",
		now, identityID,
	); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	return nil
}

// List returns sessions matching the filter, newest first.
func (r *SQLiteSessionRepository) List(ctx context.Context, filter SessionFilter) ([]RefreshSession, error) {
	query := "SELECT " + sessionColumns + " FROM refresh_sessions"
	var conditions []string
	var args []any

	if filter.IdentityID != "" {
		conditions = append(conditions, "identity_id = ?")
		args = append(args, filter.IdentityID)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "revoked_at IS NULL AND expires_at > ?")
		args = append(args, time.Now().UTC().Format(time.RFC3339))
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []RefreshSession
	for rows.Next() {
		sess, err := scanSessionFrom(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if sessions == nil {
		sessions = []RefreshSession{}
	}
	return sessions, nil
}

// scanSessionFrom scans a session from any scanner (Row or Rows).
func scanSessionFrom(s scanner) (*RefreshSession, error) {
	var sess RefreshSession
	var revokedAt, ip, userAgent sql.NullString
	var createdAt, expiresAt string

	err := s.Scan(&sess.ID, &sess.IdentityID, &createdAt, &expiresAt,
		&revokedAt, &ip, &userAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	sess.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	if revokedAt.Valid {
		t, _ := time.Parse(time.RFC3339, revokedAt.String) //nolint:errcheck // format is controlled
		sess.RevokedAt = &t
	}
	if ip.Valid {
		sess.IP = ip.String
	}
	if userAgent.Valid {
		sess.UserAgent = userAgent.String
	}

	return &sess, nil
}
