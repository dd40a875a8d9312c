package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"

	"github.com/BGMLAI/exoskull/internal/apperr"
)

// Settings keys
const (
	KeyRecallEnabled     = "recall_enabled"
	KeyRecallInterval    = "recall_interval_secs"
	KeyRecallStorageMode = "recall_storage_mode"
	KeyMouseDictation    = "mouse_button_dictation"
	KeyMouseTTS          = "mouse_button_tts"
	KeyMouseChat         = "mouse_button_chat"
	KeyTTSProvider       = "tts_provider"
	KeyAutoStart         = "auto_start"
	KeyTheme             = "theme"
	KeySchemaVersion     = "schema_version"
	KeyDeviceID          = "device_id"
)

// Recall storage modes
const (
	StorageLocal      = "local"
	StorageCloud      = "cloud"
	StorageLocalCloud = "local+cloud"
)

// DefaultSettings returns the values seeded on first launch.
func DefaultSettings() map[string]string {
	return map[string]string{
		KeyRecallEnabled:     "false",
		KeyRecallInterval:    "30",
		KeyRecallStorageMode: StorageLocal,
		KeyMouseDictation:    "4",
		KeyMouseTTS:          "5",
		KeyMouseChat:         "3",
		KeyTTSProvider:       "system",
		KeyAutoStart:         "false",
		KeyTheme:             "dark",
		KeySchemaVersion:     strconv.Itoa(SchemaVersion),
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Setting returns the value for key and whether it exists.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Store("failed to read setting "+key, err)
	}
	return value, true, nil
}

// SetSetting inserts or replaces key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx, "write setting "+key,
		`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, s.stamp())
	return err
}

// SetSettings writes several keys in one transaction.
func (s *Store) SetSettings(ctx context.Context, values map[string]string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store("failed to begin settings transaction", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := s.stamp()
	for _, key := range sortedKeys(values) {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
			key, values[key], now); err != nil {
			return apperr.Store("failed to write setting "+key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return apperr.Store("failed to commit settings", err)
	}
	return nil
}

// Settings returns every key/value pair.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, apperr.Store("failed to query settings", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, apperr.Store("failed to scan setting", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SettingInt returns key parsed as an integer, or def when unset or invalid.
func (s *Store) SettingInt(ctx context.Context, key string, def int) int {
	v, ok, err := s.Setting(ctx, key)
	if err != nil || !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// SettingBool returns key parsed as a boolean, or def when unset or invalid.
func (s *Store) SettingBool(ctx context.Context, key string, def bool) bool {
	v, ok, err := s.Setting(ctx, key)
	if err != nil || !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// SettingString returns key, or def when unset.
func (s *Store) SettingString(ctx context.Context, key, def string) string {
	v, ok, err := s.Setting(ctx, key)
	if err != nil || !ok {
		return def
	}
	return v
}
