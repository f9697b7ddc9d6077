// CLAUDE:SUMMARY Opens the modernc SQLite databases of unifistat with per-connection pragmas carried in the DSN.
// Package dbopen opens the SQLite database of the taxonomy snapshot store.
//
// Pragmas travel in the DSN as modernc.org/sqlite _pragma parameters, so
// every pooled connection gets them, not only the first one.
//
//	db, err := dbopen.Open("snapshots.db", dbopen.WithMkdirAll(), dbopen.WithSchema(snapshot.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(snapshot.Schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

type settings struct {
	busyTimeoutMS int
	mkdirAll      bool
	schemas       []string
}

// Option adjusts Open.
type Option func(*settings)

// WithBusyTimeout sets busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(s *settings) { s.busyTimeoutMS = ms } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(s *settings) { s.mkdirAll = true } }

// WithSchema runs DDL once the database is open. Statements must be
// idempotent: Open runs them on every start.
func WithSchema(ddl string) Option { return func(s *settings) { s.schemas = append(s.schemas, ddl) } }

// Open opens the database at path with WAL, NORMAL sync, foreign keys and a
// busy timeout, then applies the schemas.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := settings{busyTimeoutMS: 10_000}
	for _, o := range opts {
		o(&s)
	}
	if s.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: create directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open(driverName, dsn(path, s))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	for _, ddl := range s.schemas {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema on %s: %w", path, err)
		}
	}
	return db, nil
}

// OpenMemory opens a private in-memory database closed by t.Cleanup. The
// pool holds one connection since each :memory: connection is its own
// database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func dsn(path string, s settings) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.busyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return path + "?" + q.Encode()
}
