package identity

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testSchema mirrors the tables this package touches.
const testSchema = `
CREATE TABLE identities (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('Player', 'Coach', 'Journalist', 'Developer')),
    totp_secret TEXT,
    totp_enabled INTEGER NOT NULL DEFAULT 0,
    recovery_codes TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
) STRICT;

CREATE TABLE refresh_sessions (
    id TEXT PRIMARY KEY,
    identity_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    expires_at TEXT NOT NULL,
    revoked_at TEXT,
    ip TEXT,
    user_agent TEXT,
    FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
) STRICT;
`

// testDB opens a temporary SQLite database with the identity schema.
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

// createTestIdentity inserts an identity with a real password hash.
func createTestIdentity(t *testing.T, repo UserRepository, username, password string, role Role) *Identity {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	ident := &Identity{Username: username, PasswordHash: hash, Role: role}
	if err := repo.Create(context.Background(), ident); err != nil {
		t.Fatalf("creating identity: %v", err)
	}
	return ident
}

// createTestSession inserts an active session expiring an hour from now.
func createTestSession(t *testing.T, repo SessionRepository, identityID string) *RefreshSession {
	t.Helper()

	sess := &RefreshSession{
		IdentityID: identityID,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	if err := repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return sess
}

// totpCodeAt computes the valid code for a secret at the given instant.
func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	key, err := base32NoPadding.DecodeString(secret)
	if err != nil {
		t.Fatalf("decoding secret: %v", err)
	}
	return hotpCode(key, uint64(at.Unix()/totpPeriod))
}
