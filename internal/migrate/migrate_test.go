package migrate_test

import (
	"testing"

	"raidbot/internal/db"
	"raidbot/internal/migrate"
)

func TestMigrateTracksAppliedFiles(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Rerunning must be a no-op, not a constraint error on re-created tables.
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var applied int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	// The schema itself is usable after both runs.
	if _, err := conn.Exec(`SELECT COUNT(*) FROM users`); err != nil {
		t.Fatalf("schema missing: %v", err)
	}
}
