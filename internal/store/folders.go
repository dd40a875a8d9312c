package store

import (
	"context"
	"database/sql"

	"github.com/BGMLAI/exoskull/internal/apperr"
)

// AddWatchedFolder registers path and returns its id. Adding an existing
// path returns the existing row's id.
func (s *Store) AddWatchedFolder(ctx context.Context, path string) (int64, error) {
	if _, err := s.exec(ctx, "add watched folder",
		`INSERT OR IGNORE INTO watched_folders (path, enabled, created_at) VALUES (?, 1, ?)`,
		path, s.stamp()); err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM watched_folders WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, apperr.Store("failed to read watched folder id", err)
	}
	return id, nil
}

// WatchedFolders returns all folders in insertion order.
func (s *Store) WatchedFolders(ctx context.Context) ([]WatchedFolder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, enabled, created_at FROM watched_folders ORDER BY id`)
	if err != nil {
		return nil, apperr.Store("failed to query watched folders", err)
	}
	defer rows.Close()

	folders := []WatchedFolder{}
	for rows.Next() {
		var f WatchedFolder
		if err := rows.Scan(&f.ID, &f.Path, &f.Enabled, &f.CreatedAt); err != nil {
			return nil, apperr.Store("failed to scan watched folder", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// RemoveWatchedFolder deletes a folder and returns its path.
func (s *Store) RemoveWatchedFolder(ctx context.Context, id int64) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM watched_folders WHERE id = ?`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return "", apperr.NotFound("watched folder")
	}
	if err != nil {
		return "", apperr.Store("failed to read watched folder", err)
	}

	if _, err := s.exec(ctx, "remove watched folder", `DELETE FROM watched_folders WHERE id = ?`, id); err != nil {
		return "", err
	}
	return path, nil
}

// SetWatchedFolderEnabled toggles a folder without deleting it.
func (s *Store) SetWatchedFolderEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.exec(ctx, "update watched folder",
		`UPDATE watched_folders SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("watched folder")
	}
	return nil
}
