// Package sqlkv implements the store.KV contract on database/sql. Two
// dialects are supported: SQLite for client-local deployments and Postgres
// for a shared server-side deployment. Values are opaque byte blobs keyed
// by a text primary key.
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Drivers are registered here so callers only choose a dialect.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"notifsync/internal/store"
)

// Dialect selects the SQL flavor for schema and statements.
type Dialect string

const (
	// DialectSQLite targets a local SQLite file via mattn/go-sqlite3.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres targets Postgres via the pgx stdlib driver.
	DialectPostgres Dialect = "postgres"
)

// Store is a database/sql-backed key-value store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (creating if needed) a SQLite-backed store at path.
// WAL journaling keeps concurrent readers cheap.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return initialize(db, DialectSQLite)
}

// OpenPostgres opens a Postgres-backed store with the given DSN.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	return initialize(db, DialectPostgres)
}

// New wraps an existing connection without creating the schema. Tests use
// it with a mocked driver.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// initialize creates the kv_entries table if it does not exist.
func initialize(db *sql.DB, dialect Dialect) (*Store, error) {
	schema := `
    CREATE TABLE IF NOT EXISTS kv_entries (
        key TEXT PRIMARY KEY,
        value BLOB NOT NULL,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`
	if dialect == DialectPostgres {
		schema = `
    CREATE TABLE IF NOT EXISTS kv_entries (
        key TEXT PRIMARY KEY,
        value BYTEA NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv schema: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Get returns the value for key, or store.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM kv_entries WHERE key = ?`
	if s.dialect == DialectPostgres {
		query = `SELECT value FROM kv_entries WHERE key = $1`
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the value for key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	query := `
        INSERT INTO kv_entries (key, value, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	if s.dialect == DialectPostgres {
		query = `
        INSERT INTO kv_entries (key, value, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = now()`
	}

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
