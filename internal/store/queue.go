package store

import (
	"context"
	"database/sql"
	"os"

	"github.com/BGMLAI/exoskull/internal/apperr"
)

const queueColumns = `id, file_path, file_name, file_size, status, retries, error, created_at, uploaded_at`

func (s *Store) queryUploads(ctx context.Context, query string, args ...interface{}) ([]QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("failed to query upload queue", err)
	}
	defer rows.Close()

	items := []QueueItem{}
	for rows.Next() {
		var it QueueItem
		var size sql.NullInt64
		var errMsg, uploadedAt sql.NullString
		if err := rows.Scan(&it.ID, &it.FilePath, &it.FileName, &size, &it.Status,
			&it.Retries, &errMsg, &it.CreatedAt, &uploadedAt); err != nil {
			return nil, apperr.Store("failed to scan queue item", err)
		}
		if size.Valid {
			n := size.Int64
			it.FileSize = &n
		}
		it.Error = errMsg.String
		it.UploadedAt = uploadedAt.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// EnqueueUpload adds a pending transfer. The file size is filled in when the
// file can be stat'ed. Enqueuing the same path twice yields two rows.
func (s *Store) EnqueueUpload(ctx context.Context, filePath, fileName string) (int64, error) {
	var size sql.NullInt64
	if info, err := os.Stat(filePath); err == nil {
		size = sql.NullInt64{Int64: info.Size(), Valid: true}
	}

	res, err := s.exec(ctx, "enqueue upload", `
		INSERT INTO upload_queue (file_path, file_name, file_size, status, retries, created_at)
		VALUES (?, ?, ?, 'pending', 0, ?)
	`, filePath, fileName, size, s.stamp())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// PendingUploads returns up to limit pending rows, oldest first.
func (s *Store) PendingUploads(ctx context.Context, limit int) ([]QueueItem, error) {
	return s.queryUploads(ctx,
		`SELECT `+queueColumns+` FROM upload_queue WHERE status = 'pending' ORDER BY created_at ASC, id ASC LIMIT ?`,
		clampLimit(limit))
}

// Uploads returns up to limit rows of any status, newest first.
func (s *Store) Uploads(ctx context.Context, limit int) ([]QueueItem, error) {
	return s.queryUploads(ctx,
		`SELECT `+queueColumns+` FROM upload_queue ORDER BY created_at DESC, id DESC LIMIT ?`,
		clampLimit(limit))
}

// Upload returns one queue row by id.
func (s *Store) Upload(ctx context.Context, id int64) (*QueueItem, error) {
	items, err := s.queryUploads(ctx, `SELECT `+queueColumns+` FROM upload_queue WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.NotFound("upload")
	}
	return &items[0], nil
}

// MarkUploaded moves a row to its terminal success state.
func (s *Store) MarkUploaded(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "mark upload complete",
		`UPDATE upload_queue SET status = 'uploaded', uploaded_at = ?, error = NULL WHERE id = ?`,
		s.stamp(), id)
	return err
}

// MarkUploadFailed records the failure and bumps the retry counter.
func (s *Store) MarkUploadFailed(ctx context.Context, id int64, msg string) error {
	_, err := s.exec(ctx, "mark upload failed",
		`UPDATE upload_queue SET status = 'failed', retries = retries + 1, error = ?, uploaded_at = NULL WHERE id = ?`,
		msg, id)
	return err
}

// RetryFailedUploads re-arms failed rows with retries < maxRetries and
// returns how many were re-armed.
func (s *Store) RetryFailedUploads(ctx context.Context, maxRetries int) (int64, error) {
	res, err := s.exec(ctx, "re-arm failed uploads",
		`UPDATE upload_queue SET status = 'pending' WHERE status = 'failed' AND retries < ?`,
		maxRetries)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UploadStats counts rows per status.
func (s *Store) UploadStats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM upload_queue GROUP BY status`)
	if err != nil {
		return nil, apperr.Store("failed to count uploads", err)
	}
	defer rows.Close()

	stats := map[string]int{StatusPending: 0, StatusUploaded: 0, StatusFailed: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperr.Store("failed to scan upload count", err)
		}
		stats[status] = n
	}
	return stats, rows.Err()
}
