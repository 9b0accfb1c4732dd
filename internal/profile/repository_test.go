package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/contextawareid/identity-core/internal/identity"
)

const testSchema = `
CREATE TABLE identities (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL,
    totp_secret TEXT,
    totp_enabled INTEGER NOT NULL DEFAULT 0,
    recovery_codes TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
) STRICT;

CREATE TABLE player_profiles (
    id TEXT PRIMARY KEY,
    identity_id TEXT NOT NULL UNIQUE,
    full_name TEXT,
    preferred_name TEXT,
    jersey_name TEXT,
    date_of_birth TEXT,
    position TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
) STRICT;

CREATE TABLE field_visibility (
    profile_id TEXT NOT NULL,
    field TEXT NOT NULL,
    visible_to TEXT NOT NULL,
    PRIMARY KEY (profile_id, field, visible_to),
    FOREIGN KEY (profile_id) REFERENCES player_profiles(id) ON DELETE CASCADE
) STRICT;
`

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}
	return db
}

// seedIdentity inserts a bare identity row so profile FKs resolve.
func seedIdentity(t *testing.T, db *sql.DB, id string) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO identities (id, username, password_hash, role, created_at, updated_at)
		 VALUES (?, ?, 'x', 'Player', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`,
		id, "user-"+id,
	)
	if err != nil {
		t.Fatalf("seeding identity: %v", err)
	}
}

func createProfile(t *testing.T, repo *SQLiteRepository, db *sql.DB, identityID string) *PlayerProfile {
	t.Helper()

	seedIdentity(t, db, identityID)
	if err := repo.CreateForIdentity(context.Background(), identityID); err != nil {
		t.Fatalf("CreateForIdentity() error = %v", err)
	}
	p, err := repo.GetByIdentity(context.Background(), identityID)
	if err != nil {
		t.Fatalf("GetByIdentity() error = %v", err)
	}
	return p
}

func strptr(s string) *string { return &s }

func TestRepository_CreateForIdentity(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	p := createProfile(t, repo, db, "usr-aaaa0001")

	if p.IdentityID != "usr-aaaa0001" {
		t.Errorf("IdentityID = %q, want usr-aaaa0001", p.IdentityID)
	}
	if p.FullName != nil || p.Position != nil {
		t.Error("fresh profile has attributes set")
	}

	got, err := repo.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("GetByID() ID = %q, want %q", got.ID, p.ID)
	}
}

func TestRepository_GetMissing(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "ply-missing1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByIdentity(ctx, "usr-missing1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByIdentity() error = %v, want ErrNotFound", err)
	}
}

func TestRepository_ReplaceAttributesAndGrants(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	p := createProfile(t, repo, db, "usr-aaaa0001")

	p.FullName = strptr("Jordan Example")
	p.JerseyName = strptr("JORDY")
	grants := []VisibilityGrant{
		{ProfileID: p.ID, Field: FieldJerseyName, VisibleTo: identity.RoleJournalist},
		{ProfileID: p.ID, Field: FieldFullName, VisibleTo: identity.RoleCoach},
	}

	if err := repo.Replace(ctx, p, grants); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FullName == nil || *got.FullName != "Jordan Example" {
		t.Errorf("FullName = %v, want Jordan Example", got.FullName)
	}
	if got.PreferredName != nil {
		t.Error("PreferredName should stay unset")
	}

	stored, err := repo.Grants(ctx, p.ID)
	if err != nil {
		t.Fatalf("Grants() error = %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Grants() = %d rows, want 2", len(stored))
	}

	// A second replace swaps the grant set completely.
	p.FullName = nil
	if err := repo.Replace(ctx, p, []VisibilityGrant{
		{ProfileID: p.ID, Field: FieldPosition, VisibleTo: identity.RoleCoach},
	}); err != nil {
		t.Fatalf("second Replace() error = %v", err)
	}

	stored, err = repo.Grants(ctx, p.ID)
	if err != nil {
		t.Fatalf("Grants() error = %v", err)
	}
	if len(stored) != 1 || stored[0].Field != FieldPosition {
		t.Errorf("Grants() after replace = %v, want only position", stored)
	}

	got, err = repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FullName != nil {
		t.Error("FullName not cleared by replace")
	}
}

func TestRepository_ReplaceRejectsUnknownField(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)

	p := createProfile(t, repo, db, "usr-aaaa0001")

	err := repo.Replace(context.Background(), p, []VisibilityGrant{
		{ProfileID: p.ID, Field: "shoeSize", VisibleTo: identity.RoleCoach},
	})
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("Replace() error = %v, want ErrInvalidField", err)
	}

	// The failed replace must not have touched the grant set.
	grants, gerr := repo.Grants(context.Background(), p.ID)
	if gerr != nil {
		t.Fatalf("Grants() error = %v", gerr)
	}
	if len(grants) != 0 {
		t.Errorf("Grants() = %d rows after failed replace, want 0", len(grants))
	}
}

func TestRepository_ReplaceMissingProfile(t *testing.T) {
	repo := NewRepository(testDB(t))

	p := &PlayerProfile{ID: "ply-missing1"}
	if err := repo.Replace(context.Background(), p, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Replace() error = %v, want ErrNotFound", err)
	}
}

func TestRepository_List(t *testing.T) {
	db := testDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createProfile(t, repo, db, fmt.Sprintf("usr-aaaa000%d", i))
	}

	summaries, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(summaries) != 3 {
		t.Errorf("List() = %d summaries, want 3", len(summaries))
	}
}
