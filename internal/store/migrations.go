package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// SchemaVersion is recorded in the settings table after migrations succeed.
const SchemaVersion = 1

type migration struct {
	name  string
	apply func(ctx context.Context, tx *sql.Tx) error
}

// migrations run in order inside one transaction. Each step is idempotent.
var migrations = []migration{
	{"settings table", createSettingsTable},
	{"auth table", createAuthTable},
	{"capture_entries table", createCaptureEntriesTable},
	{"capture_fts index", createCaptureFTS},
	{"upload_queue table", createUploadQueueTable},
	{"watched_folders table", createWatchedFoldersTable},
	{"recall_exclusions table", createRecallExclusionsTable},
	{"indexes", createIndexes},
}

// runMigrations executes all database migrations in a transaction
func (s *Store) runMigrations(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, m := range migrations {
		if err = m.apply(ctx, tx); err != nil {
			return fmt.Errorf("failed to create %s: %w", m.name, err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES ('schema_version', ?, ?)`,
		strconv.Itoa(SchemaVersion), s.stamp()); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	return nil
}

func createSettingsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

func createAuthTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS auth (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			refresh_token TEXT,
			tenant_id TEXT,
			user_email TEXT,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

func createCaptureEntriesTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS capture_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			app_name TEXT,
			window_title TEXT,
			ocr_text TEXT,
			image_path TEXT NOT NULL,
			thumbnail_path TEXT,
			image_hash TEXT NOT NULL,
			synced INTEGER NOT NULL DEFAULT 0 CHECK (synced IN (0, 1)),
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// createCaptureFTS builds an external-content FTS5 index over the text
// columns of capture_entries, kept in step by triggers.
func createCaptureFTS(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS capture_fts USING fts5(
			ocr_text, window_title, app_name,
			content='capture_entries', content_rowid='id'
		)`,
		`CREATE TRIGGER IF NOT EXISTS capture_fts_ai AFTER INSERT ON capture_entries BEGIN
			INSERT INTO capture_fts(rowid, ocr_text, window_title, app_name)
			VALUES (new.id, new.ocr_text, new.window_title, new.app_name);
		END`,
		`CREATE TRIGGER IF NOT EXISTS capture_fts_ad AFTER DELETE ON capture_entries BEGIN
			INSERT INTO capture_fts(capture_fts, rowid, ocr_text, window_title, app_name)
			VALUES ('delete', old.id, old.ocr_text, old.window_title, old.app_name);
		END`,
		`CREATE TRIGGER IF NOT EXISTS capture_fts_au AFTER UPDATE ON capture_entries BEGIN
			INSERT INTO capture_fts(capture_fts, rowid, ocr_text, window_title, app_name)
			VALUES ('delete', old.id, old.ocr_text, old.window_title, old.app_name);
			INSERT INTO capture_fts(rowid, ocr_text, window_title, app_name)
			VALUES (new.id, new.ocr_text, new.window_title, new.app_name);
		END`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func createUploadQueueTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS upload_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_size INTEGER,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'uploaded', 'failed')),
			retries INTEGER NOT NULL DEFAULT 0 CHECK (retries >= 0),
			error TEXT,
			created_at TEXT NOT NULL,
			uploaded_at TEXT,
			CHECK ((status = 'uploaded') = (uploaded_at IS NOT NULL))
		)
	`)
	return err
}

func createWatchedFoldersTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS watched_folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func createRecallExclusionsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS recall_exclusions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('app_name', 'window_title')),
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func createIndexes(ctx context.Context, tx *sql.Tx) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_capture_timestamp ON capture_entries(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_capture_synced ON capture_entries(synced, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_upload_queue_status ON upload_queue(status, created_at)",
	}
	for _, idx := range indexes {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

// seedSettings inserts defaults without touching values the user changed.
func (s *Store) seedSettings(ctx context.Context) error {
	now := s.stamp()
	defaults := DefaultSettings()
	defaults[KeyDeviceID] = uuid.NewString()

	for _, key := range sortedKeys(defaults) {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
			key, defaults[key], now); err != nil {
			return fmt.Errorf("failed to seed %s: %w", key, err)
		}
	}
	return nil
}
