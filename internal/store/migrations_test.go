package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openRawSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations_FreshDatabase(t *testing.T) {
	db := openRawSQLite(t)

	if err := RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	if _, err := db.Exec(`SELECT id, data, version, updated_at FROM site_config LIMIT 0`); err != nil {
		t.Fatalf("site_config missing required columns: %v", err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := openRawSQLite(t)

	if err := RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}
	if err := RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("second migration should be idempotent, got error: %v", err)
	}
}

func TestSchema_SingletonRow(t *testing.T) {
	db := openRawSQLite(t)
	if err := RunMigrations(db, "sqlite"); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO site_config (id, data, version, updated_at) VALUES (1, '{}', 1, 'now')`); err != nil {
		t.Fatalf("insert id=1: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO site_config (id, data, version, updated_at) VALUES (2, '{}', 1, 'now')`); err == nil {
		t.Fatal("expected CHECK constraint to reject id=2")
	}
}

func TestRunMigrations_UnknownDialect(t *testing.T) {
	db := openRawSQLite(t)
	if err := RunMigrations(db, "oracle-ish"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}
