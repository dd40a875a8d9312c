// Package store is the agent's single embedded database: settings, the
// session row, recall captures with their full-text index, the upload queue,
// watched folders and capture exclusions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BGMLAI/exoskull/internal/apperr"
	_ "modernc.org/sqlite"
)

// Store wraps the database pool. Every method checks a connection out for a
// single statement (or one transaction) and returns it before returning, so
// no connection is held across a caller's network calls.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Initialize creates the parent directory, opens the database, applies
// migrations and seeds default settings. Safe to call on every launch.
func Initialize(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperr.Store("failed to create data directory", err)
	}

	s, err := Open(path)
	if err != nil {
		return nil, err
	}

	if err := s.runMigrations(ctx); err != nil {
		s.Close()
		return nil, apperr.Store("failed to run migrations", err)
	}
	if err := s.seedSettings(ctx); err != nil {
		s.Close()
		return nil, apperr.Store("failed to seed settings", err)
	}
	return s, nil
}

// Open returns a handle on an already initialized database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, apperr.Store("failed to open database", err)
	}

	// WAL allows many readers and one writer; busy_timeout serializes writers.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Store("failed to ping database", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// timestamp formats t as ISO-8601 UTC with second precision.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (s *Store) stamp() string {
	return timestamp(s.now())
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func (s *Store) exec(ctx context.Context, what, query string, args ...interface{}) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store(fmt.Sprintf("failed to %s", what), err)
	}
	return res, nil
}
