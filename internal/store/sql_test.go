package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/sitecms/internal/config"
)

// testRepositoryContract exercises the behaviour every backend must share.
func testRepositoryContract(t *testing.T, repo ConfigRepository) {
	ctx := context.Background()

	t.Run("get before seed is not found", func(t *testing.T) {
		if _, err := repo.Get(ctx); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
	})

	first := json.RawMessage(`{"header":{"nav":{"faq":"FAQ"}},  "faq":null}`)

	t.Run("create with expected version zero", func(t *testing.T) {
		doc, err := repo.CompareAndPut(ctx, first, 0)
		if err != nil {
			t.Fatalf("CompareAndPut() error = %v", err)
		}
		if doc.Version != 1 {
			t.Errorf("Version = %d, want 1", doc.Version)
		}
	})

	t.Run("bytes round-trip verbatim", func(t *testing.T) {
		doc, err := repo.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(doc.Data) != string(first) {
			t.Errorf("Data = %s, want %s", doc.Data, first)
		}
		if doc.UpdatedAt.IsZero() {
			t.Error("UpdatedAt not set")
		}
	})

	t.Run("create again conflicts", func(t *testing.T) {
		if _, err := repo.CompareAndPut(ctx, first, 0); !errors.Is(err, ErrConflict) {
			t.Fatalf("CompareAndPut(0) error = %v, want ErrConflict", err)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		if _, err := repo.CompareAndPut(ctx, json.RawMessage(`{}`), 7); !errors.Is(err, ErrConflict) {
			t.Fatalf("CompareAndPut(7) error = %v, want ErrConflict", err)
		}
	})

	t.Run("matching version bumps", func(t *testing.T) {
		doc, err := repo.CompareAndPut(ctx, json.RawMessage(`{"a":1}`), 1)
		if err != nil {
			t.Fatalf("CompareAndPut(1) error = %v", err)
		}
		if doc.Version != 2 {
			t.Errorf("Version = %d, want 2", doc.Version)
		}
	})

	t.Run("put overwrites and bumps", func(t *testing.T) {
		doc, err := repo.Put(ctx, json.RawMessage(`{"b":2}`))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if doc.Version != 3 {
			t.Errorf("Version = %d, want 3", doc.Version)
		}
		got, err := repo.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got.Data) != `{"b":2}` || got.Version != 3 {
			t.Errorf("Get() = %s v%d", got.Data, got.Version)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	testRepositoryContract(t, s)
}

func TestSQLiteStore_PutOnEmptyCreates(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	doc, err := s.Put(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if doc.Version != 1 {
		t.Errorf("Version = %d, want 1", doc.Version)
	}

	got, err := s.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixed)
	}
}

func TestSQLiteStore_CreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "sitecms.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestSQLiteStore_WALMode(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestSQLiteStore_ConcurrentCompareAndPut(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.Put(ctx, json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CompareAndPut(ctx, json.RawMessage(`{"x":1}`), 1)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	got := pg.rebind("UPDATE t SET a = ?, b = ? WHERE c = ?")
	want := "UPDATE t SET a = $1, b = $2 WHERE c = $3"
	if got != want {
		t.Errorf("rebind() = %q, want %q", got, want)
	}

	lite := &SQLStore{dialect: DialectSQLite}
	if q := lite.rebind("SELECT ?"); q != "SELECT ?" {
		t.Errorf("sqlite rebind changed query: %q", q)
	}
}

func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("SITECMS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SITECMS_TEST_POSTGRES_DSN not set")
	}

	s, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.db.Exec(`DELETE FROM site_config`); err != nil {
		t.Fatal(err)
	}

	testRepositoryContract(t, s)
}

func TestOpen_SelectsDriver(t *testing.T) {
	repo, err := Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "open.db"),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer repo.Close()
	if _, ok := repo.(*SQLStore); !ok {
		t.Errorf("Open() returned %T, want *SQLStore", repo)
	}

	if _, err := Open(context.Background(), config.DatabaseConfig{Driver: "dbase"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
