package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contextawareid/identity-core/internal/identity"
)

// Repository defines the interface for player profile persistence.
type Repository interface {
	// CreateForIdentity provisions an empty profile for a new Player account.
	CreateForIdentity(ctx context.Context, identityID string) error
	GetByID(ctx context.Context, id string) (*PlayerProfile, error)
	GetByIdentity(ctx context.Context, identityID string) (*PlayerProfile, error)
	List(ctx context.Context) ([]Summary, error)
	// Replace updates the profile attributes and swaps the complete grant
	// set in a single transaction. A reader never observes a half-replaced
	// grant set.
	Replace(ctx context.Context, p *PlayerProfile, grants []VisibilityGrant) error
	Grants(ctx context.Context, profileID string) ([]VisibilityGrant, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed profile repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const profileColumns = "id, identity_id, full_name, preferred_name, jersey_name, date_of_birth, position, created_at, updated_at"

// CreateForIdentity provisions an empty profile. Satisfies the identity
// package's ProfileProvisioner.
func (r *SQLiteRepository) CreateForIdentity(ctx context.Context, identityID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO player_profiles (id, identity_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		"ply-"+uuid.NewString()[:8], identityID, now, now,
	)
	if err != nil {
		return fmt.Errorf("creating player profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by its own ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*PlayerProfile, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM player_profiles WHERE id = ?", id)
	return scanProfile(row)
}

// GetByIdentity retrieves the profile owned by an identity.
func (r *SQLiteRepository) GetByIdentity(ctx context.Context, identityID string) (*PlayerProfile, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM player_profiles WHERE identity_id = ?", identityID)
	return scanProfile(row)
}

// List returns summaries of all profiles for selection UIs.
func (r *SQLiteRepository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, identity_id, preferred_name, jersey_name FROM player_profiles ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		var preferred, jersey sql.NullString
		if err := rows.Scan(&s.ID, &s.IdentityID, &preferred, &jersey); err != nil {
			return nil, fmt.Errorf("scanning profile summary: %w", err)
		}
		if preferred.Valid {
			s.PreferredName = &preferred.String
		}
		if jersey.Valid {
			s.JerseyName = &jersey.String
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}

	if summaries == nil {
		summaries = []Summary{}
	}
	return summaries, nil
}

// Replace updates attributes and replaces the full grant set atomically.
// The grant swap is delete-all-then-insert inside the same transaction.
func (r *SQLiteRepository) Replace(ctx context.Context, p *PlayerProfile, grants []VisibilityGrant) error {
	for _, g := range grants {
		if !ValidField(g.Field) {
			return fmt.Errorf("%w: %s", ErrInvalidField, g.Field)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := tx.ExecContext(ctx,
		`UPDATE player_profiles
		 SET full_name = ?, preferred_name = ?, jersey_name = ?, date_of_birth = ?, position = ?, updated_at = ?
		 WHERE id = ?`,
		nullPtr(p.FullName), nullPtr(p.PreferredName), nullPtr(p.JerseyName),
		nullPtr(p.DateOfBirth), nullPtr(p.Position), now, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM field_visibility WHERE profile_id = ?", p.ID); err != nil {
		return fmt.Errorf("clearing visibility grants: %w", err)
	}

	for _, g := range grants {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO field_visibility (profile_id, field, visible_to) VALUES (?, ?, ?)",
			p.ID, g.Field, string(g.VisibleTo)); err != nil {
			return fmt.Errorf("granting field %s: %w", g.Field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing profile update: %w", err)
	}
	return nil
}

// Grants returns all visibility grants for a profile.
func (r *SQLiteRepository) Grants(ctx context.Context, profileID string) ([]VisibilityGrant, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT profile_id, field, visible_to FROM field_visibility WHERE profile_id = ? ORDER BY field, visible_to",
		profileID)
	if err != nil {
		return nil, fmt.Errorf("getting visibility grants: %w", err)
	}
	defer rows.Close()

	var grants []VisibilityGrant
	for rows.Next() {
		var g VisibilityGrant
		var visibleTo string
		if err := rows.Scan(&g.ProfileID, &g.Field, &visibleTo); err != nil {
			return nil, fmt.Errorf("scanning visibility grant: %w", err)
		}
		g.VisibleTo = identity.Role(visibleTo)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visibility grants: %w", err)
	}

	if grants == nil {
		grants = []VisibilityGrant{}
	}
	return grants, nil
}

// scanProfile scans a profile from a single row.
func scanProfile(row *sql.Row) (*PlayerProfile, error) {
	var p PlayerProfile
	var fullName, preferred, jersey, dob, position sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.IdentityID, &fullName, &preferred, &jersey,
		&dob, &position, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning profile: %w", err)
	}

	p.FullName = ptrOf(fullName)
	p.PreferredName = ptrOf(preferred)
	p.JerseyName = ptrOf(jersey)
	p.DateOfBirth = ptrOf(dob)
	p.Position = ptrOf(position)

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &p, nil
}

// Helper functions.

func nullPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptrOf(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
