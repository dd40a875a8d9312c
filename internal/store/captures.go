package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/BGMLAI/exoskull/internal/apperr"
)

const captureColumns = `c.id, c.timestamp, c.app_name, c.window_title, c.ocr_text,
	c.image_path, c.thumbnail_path, c.image_hash, c.synced, c.created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(row rowScanner, extra ...interface{}) (CaptureEntry, error) {
	var e CaptureEntry
	var app, title, ocr, thumb sql.NullString
	dest := append([]interface{}{
		&e.ID, &e.Timestamp, &app, &title, &ocr,
		&e.ImagePath, &thumb, &e.ImageHash, &e.Synced, &e.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return e, err
	}
	e.AppName = app.String
	e.WindowTitle = title.String
	e.OCRText = ocr.String
	e.ThumbnailPath = thumb.String
	return e, nil
}

func (s *Store) queryCaptures(ctx context.Context, what, query string, args ...interface{}) ([]CaptureEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("failed to query "+what, err)
	}
	defer rows.Close()

	var out []CaptureEntry
	for rows.Next() {
		e, err := scanCapture(rows)
		if err != nil {
			return nil, apperr.Store("failed to scan capture", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("failed to iterate "+what, err)
	}
	return out, nil
}

// InsertCapture appends a capture row; the FTS index follows via trigger.
func (s *Store) InsertCapture(ctx context.Context, c NewCapture) (int64, error) {
	res, err := s.exec(ctx, "insert capture", `
		INSERT INTO capture_entries
			(timestamp, app_name, window_title, ocr_text, image_path, thumbnail_path, image_hash, synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, c.Timestamp, nullString(c.AppName), nullString(c.WindowTitle), nullString(c.OCRText),
		c.ImagePath, nullString(c.ThumbnailPath), c.ImageHash, s.stamp())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Capture returns one capture by id.
func (s *Store) Capture(ctx context.Context, id int64) (*CaptureEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+captureColumns+` FROM capture_entries c WHERE c.id = ?`, id)
	e, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("capture")
	}
	if err != nil {
		return nil, apperr.Store("failed to load capture", err)
	}
	return &e, nil
}

// ftsQuery quotes each term so user input cannot inject FTS5 operators.
// Terms are implicitly ANDed.
func ftsQuery(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}

// SearchCaptures runs a full-text match over ocr_text, window_title and
// app_name, best match first. Snippets wrap hits in <mark></mark>.
func (s *Store) SearchCaptures(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return []SearchResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+captureColumns+`,
			snippet(capture_fts, -1, '<mark>', '</mark>', '…', 32),
			capture_fts.rank
		FROM capture_fts
		JOIN capture_entries c ON c.id = capture_fts.rowid
		WHERE capture_fts MATCH ?
		ORDER BY capture_fts.rank
		LIMIT ?
	`, match, clampLimit(limit))
	if err != nil {
		return nil, apperr.Store("failed to search captures", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var snippet sql.NullString
		e, err := scanCapture(rows, &snippet, &r.Rank)
		if err != nil {
			return nil, apperr.Store("failed to scan search result", err)
		}
		r.CaptureEntry = e
		r.Snippet = snippet.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("failed to search captures", err)
	}
	return results, nil
}

// CaptureTimeline lists captures newest first. date ("YYYY-MM-DD") matches
// as a literal timestamp prefix; app matches as a literal case-insensitive
// substring of app_name. Empty filters are ignored.
func (s *Store) CaptureTimeline(ctx context.Context, date, app string, limit, offset int) ([]CaptureEntry, error) {
	query := `SELECT ` + captureColumns + ` FROM capture_entries c WHERE 1=1`
	var args []interface{}

	if date != "" {
		query += ` AND substr(c.timestamp, 1, ?) = ?`
		args = append(args, len(date), date)
	}
	if app != "" {
		query += ` AND instr(lower(c.app_name), lower(?)) > 0`
		args = append(args, app)
	}
	if offset < 0 {
		offset = 0
	}
	query += ` ORDER BY c.timestamp DESC, c.id DESC LIMIT ? OFFSET ?`
	args = append(args, clampLimit(limit), offset)

	out, err := s.queryCaptures(ctx, "timeline", query, args...)
	if out == nil && err == nil {
		out = []CaptureEntry{}
	}
	return out, err
}

// UnsyncedCaptures returns up to limit rows with synced=0, oldest first.
func (s *Store) UnsyncedCaptures(ctx context.Context, limit int) ([]CaptureEntry, error) {
	return s.queryCaptures(ctx, "unsynced captures",
		`SELECT `+captureColumns+` FROM capture_entries c WHERE c.synced = 0 ORDER BY c.timestamp ASC, c.id ASC LIMIT ?`,
		clampLimit(limit))
}

// MarkCaptureSynced sets synced=1.
func (s *Store) MarkCaptureSynced(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "mark capture synced", `UPDATE capture_entries SET synced = 1 WHERE id = ?`, id)
	return err
}

// DeleteCapture removes a row and its index entry. Image files are left to
// the caller.
func (s *Store) DeleteCapture(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, "delete capture", `DELETE FROM capture_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("capture")
	}
	return nil
}

// LastCaptureHash returns the image_hash of the newest row, or "" if none.
func (s *Store) LastCaptureHash(ctx context.Context) (string, error) {
	var h sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT image_hash FROM capture_entries ORDER BY id DESC LIMIT 1`).Scan(&h)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperr.Store("failed to read last capture hash", err)
	}
	return h.String, nil
}

// CaptureStats counts rows and reports the timestamp range.
func (s *Store) CaptureStats(ctx context.Context) (CaptureStats, error) {
	var st CaptureStats
	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0), MIN(timestamp), MAX(timestamp)
		FROM capture_entries
	`).Scan(&st.Total, &st.Unsynced, &oldest, &newest)
	if err != nil {
		return st, apperr.Store("failed to read capture stats", err)
	}
	st.Oldest = oldest.String
	st.Newest = newest.String
	return st, nil
}
