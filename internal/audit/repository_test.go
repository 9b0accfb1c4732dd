package audit

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const testSchema = `
CREATE TABLE audit_logs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    actor_id TEXT,
    action TEXT NOT NULL,
    resource TEXT,
    outcome TEXT NOT NULL,
    ip TEXT,
    user_agent TEXT,
    metadata TEXT
) STRICT;
`

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}
	return db
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entry := &Entry{
		ActorID:   "usr-aaaa0001",
		Action:    "login",
		Resource:  "usr-aaaa0001",
		Outcome:   OutcomeSuccess,
		IP:        "203.0.113.7",
		UserAgent: "test-client",
		Metadata:  map[string]string{"role": "Player"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatal("Create() did not assign ID and timestamp")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List() total=%d entries=%d, want 1/1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Action != "login" || got.Outcome != OutcomeSuccess {
		t.Errorf("entry = %+v, want login/success", got)
	}
	if got.Metadata["role"] != "Player" {
		t.Errorf("metadata = %v, want role=Player", got.Metadata)
	}
}

func TestRepository_ListFilters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	seed := []Entry{
		{ActorID: "usr-aaaa0001", Action: "login", Outcome: OutcomeSuccess},
		{ActorID: "usr-aaaa0001", Action: "logout", Outcome: OutcomeSuccess},
		{ActorID: "usr-bbbb0002", Action: "login", Outcome: OutcomeFailure},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by actor", Filter{ActorID: "usr-aaaa0001"}, 2},
		{"by action", Filter{Action: "login"}, 2},
		{"by outcome", Filter{Outcome: OutcomeFailure}, 1},
		{"actor and action", Filter{ActorID: "usr-aaaa0001", Action: "login"}, 1},
		{"no match", Filter{ActorID: "usr-nobody"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("Total = %d, want %d", result.Total, tt.want)
			}
		})
	}
}

func TestRepository_ListPagination(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := &Entry{Action: fmt.Sprintf("action-%d", i), Outcome: OutcomeSuccess}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Entries) != 2 || result.Total != 5 {
		t.Errorf("page 1: entries=%d total=%d, want 2/5", len(result.Entries), result.Total)
	}

	// Limit is clamped, offset defaults.
	result, err = repo.List(ctx, Filter{Limit: 10000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 || result.Offset != 0 {
		t.Errorf("clamped limit=%d offset=%d, want 200/0", result.Limit, result.Offset)
	}

	result, err = repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 50 {
		t.Errorf("default limit = %d, want 50", result.Limit)
	}
}
