package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names accepted by the SQL backend.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// SQLStore keeps the site configuration in a single-row SQL table.
type SQLStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

var _ ConfigRepository = (*SQLStore)(nil)

// NewSQLiteStore opens (creating if needed) a SQLite database at dbPath.
// It applies WAL pragmas and runs migrations. ":memory:" is supported.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	// busy_timeout is per connection, so it rides on the DSN.
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every pooled connection to :memory: would be a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db, DialectSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, dialect: DialectSQLite, now: time.Now}, nil
}

// NewPostgresStore connects to Postgres using dsn and runs migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := RunMigrations(db, DialectPostgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, dialect: DialectPostgres, now: time.Now}, nil
}

// enablePragmas sets SQLite pragmas for durability under concurrent access.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the stored document or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context) (*Document, error) {
	var (
		data      string
		version   int64
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT data, version, updated_at FROM site_config WHERE id = 1`,
	)).Scan(&data, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query site config: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}

	return &Document{Data: json.RawMessage(data), Version: version, UpdatedAt: ts}, nil
}

// Put inserts or replaces the document.
func (s *SQLStore) Put(ctx context.Context, data json.RawMessage) (*Document, error) {
	now := s.now().UTC()

	var version int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO site_config (id, data, version, updated_at)
		VALUES (1, ?, 1, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			version = site_config.version + 1,
			updated_at = excluded.updated_at
		RETURNING version
	`), string(data), now.Format(time.RFC3339Nano)).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("upsert site config: %w", err)
	}

	return &Document{Data: data, Version: version, UpdatedAt: now}, nil
}

// CompareAndPut writes data only if the stored version equals expectedVersion.
func (s *SQLStore) CompareAndPut(ctx context.Context, data json.RawMessage, expectedVersion int64) (*Document, error) {
	now := s.now().UTC()
	ts := now.Format(time.RFC3339Nano)

	var (
		version int64
		err     error
	)
	if expectedVersion == 0 {
		err = s.db.QueryRowContext(ctx, s.rebind(`
			INSERT INTO site_config (id, data, version, updated_at)
			VALUES (1, ?, 1, ?)
			ON CONFLICT (id) DO NOTHING
			RETURNING version
		`), string(data), ts).Scan(&version)
	} else {
		err = s.db.QueryRowContext(ctx, s.rebind(`
			UPDATE site_config
			SET data = ?, version = version + 1, updated_at = ?
			WHERE id = 1 AND version = ?
			RETURNING version
		`), string(data), ts, expectedVersion).Scan(&version)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("compare-and-put site config: %w", err)
	}

	return &Document{Data: data, Version: version, UpdatedAt: now}, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
