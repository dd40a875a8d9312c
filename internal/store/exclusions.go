package store

import (
	"context"
	"strings"

	"github.com/BGMLAI/exoskull/internal/apperr"
)

// AddExclusion stores a capture exclusion. typ must be app_name or window_title.
func (s *Store) AddExclusion(ctx context.Context, pattern, typ string) (int64, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return 0, apperr.Config("exclusion pattern must not be empty")
	}
	if typ != ExcludeAppName && typ != ExcludeWindowTitle {
		return 0, apperr.Config("invalid exclusion type %q (must be %s or %s)", typ, ExcludeAppName, ExcludeWindowTitle)
	}

	res, err := s.exec(ctx, "add exclusion",
		`INSERT INTO recall_exclusions (pattern, type, created_at) VALUES (?, ?, ?)`,
		pattern, typ, s.stamp())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RemoveExclusion deletes an exclusion by id.
func (s *Store) RemoveExclusion(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, "remove exclusion", `DELETE FROM recall_exclusions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("exclusion")
	}
	return nil
}

// Exclusions returns every exclusion in insertion order.
func (s *Store) Exclusions(ctx context.Context) ([]Exclusion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, pattern, type, created_at FROM recall_exclusions ORDER BY id`)
	if err != nil {
		return nil, apperr.Store("failed to query exclusions", err)
	}
	defer rows.Close()

	out := []Exclusion{}
	for rows.Next() {
		var e Exclusion
		if err := rows.Scan(&e.ID, &e.Pattern, &e.Type, &e.CreatedAt); err != nil {
			return nil, apperr.Store("failed to scan exclusion", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
