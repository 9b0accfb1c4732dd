package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	ident := createTestIdentity(t, users, "sessioned", "hunter2hunter2", RolePlayer)
	sess := createTestSession(t, repo, ident.ID)

	got, err := repo.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.IdentityID != ident.ID {
		t.Errorf("IdentityID = %q, want %q", got.IdentityID, ident.ID)
	}
	if got.RevokedAt != nil {
		t.Error("new session is already revoked")
	}
	if !got.Active(time.Now()) {
		t.Error("new session is not active")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_Rotate(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	ident := createTestIdentity(t, users, "rotating", "hunter2hunter2", RolePlayer)
	old := createTestSession(t, repo, ident.ID)

	next := &RefreshSession{
		IdentityID: ident.ID,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	if err := repo.Rotate(ctx, old.ID, next); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	revoked, err := repo.GetByID(ctx, old.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Error("rotated-away session is not revoked")
	}

	replacement, err := repo.GetByID(ctx, next.ID)
	if err != nil {
		t.Fatalf("GetByID() for replacement error = %v", err)
	}
	if !replacement.Active(time.Now()) {
		t.Error("replacement session is not active")
	}

	// A second redemption of the same session must fail.
	again := &RefreshSession{IdentityID: ident.ID, ExpiresAt: time.Now().UTC().Add(time.Hour)}
	if err := repo.Rotate(ctx, old.ID, again); !errors.Is(err, ErrRefreshInvalid) {
		t.Errorf("second Rotate() error = %v, want ErrRefreshInvalid", err)
	}
	if _, err := repo.GetByID(ctx, again.ID); !errors.Is(err, ErrNotFound) {
		t.Error("failed rotation still inserted a replacement session")
	}
}

func TestSessionRepository_RevokeIdempotent(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	ident := createTestIdentity(t, users, "revoked", "hunter2hunter2", RolePlayer)
	sess := createTestSession(t, repo, ident.ID)

	if err := repo.Revoke(ctx, sess.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	got, err := repo.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.RevokedAt == nil {
		t.Fatal("session is not revoked")
	}
	first := *got.RevokedAt

	// Revoking again succeeds and does not move the timestamp.
	if err := repo.Revoke(ctx, sess.ID); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}
	got, err = repo.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.RevokedAt.Equal(first) {
		t.Error("second Revoke() changed revoked_at")
	}

	if err := repo.Revoke(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Revoke() on missing session error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_RevokeAllForIdentity(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	target := createTestIdentity(t, users, "target", "hunter2hunter2", RolePlayer)
	other := createTestIdentity(t, users, "bystander", "hunter2hunter2", RolePlayer)

	createTestSession(t, repo, target.ID)
	createTestSession(t, repo, target.ID)
	kept := createTestSession(t, repo, other.ID)

	if err := repo.RevokeAllForIdentity(ctx, target.ID); err != nil {
		t.Fatalf("RevokeAllForIdentity() error = %v", err)
	}

	active, err := repo.List(ctx, SessionFilter{IdentityID: target.ID, ActiveOnly: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("target still has %d active sessions", len(active))
	}

	// History is retained, not deleted.
	all, err := repo.List(ctx, SessionFilter{IdentityID: target.ID})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("target session history has %d rows, want 2", len(all))
	}

	got, err := repo.GetByID(ctx, kept.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.RevokedAt != nil {
		t.Error("bystander's session was revoked")
	}
}

func TestSessionRepository_ListActiveOnly(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	ident := createTestIdentity(t, users, "listed", "hunter2hunter2", RolePlayer)

	active := createTestSession(t, repo, ident.ID)

	expired := &RefreshSession{
		IdentityID: ident.ID,
		ExpiresAt:  time.Now().UTC().Add(-time.Hour),
	}
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	revoked := createTestSession(t, repo, ident.ID)
	if err := repo.Revoke(ctx, revoked.ID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	got, err := repo.List(ctx, SessionFilter{IdentityID: ident.ID, ActiveOnly: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Errorf("List(ActiveOnly) = %d sessions, want just the active one", len(got))
	}

	all, err := repo.List(ctx, SessionFilter{IdentityID: ident.ID})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() = %d sessions, want 3", len(all))
	}
}
