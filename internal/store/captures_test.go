package store

import (
	"context"
	"testing"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertCapture(t *testing.T, s *Store, c NewCapture) int64 {
	t.Helper()
	if c.ImagePath == "" {
		c.ImagePath = "/recall/" + c.Timestamp + ".png"
	}
	if c.ImageHash == "" {
		c.ImageHash = "hash-" + c.Timestamp
	}
	id, err := s.InsertCapture(context.Background(), c)
	require.NoError(t, err)
	return id
}

func ftsRows(t *testing.T, s *Store, id int64) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM capture_fts_docsize WHERE id = ?`, id).Scan(&n))
	return n
}

func TestCaptureIndexFollowsRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", AppName: "Editor", OCRText: "hello world"})
	assert.Equal(t, 1, ftsRows(t, s, id))

	require.NoError(t, s.MarkCaptureSynced(ctx, id))
	assert.Equal(t, 1, ftsRows(t, s, id))
	res, err := s.SearchCaptures(ctx, "hello", 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.True(t, res[0].Synced)

	require.NoError(t, s.DeleteCapture(ctx, id))
	assert.Equal(t, 0, ftsRows(t, s, id))
	res, err = s.SearchCaptures(ctx, "hello", 5)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = s.db.ExecContext(ctx, `INSERT INTO capture_fts(capture_fts) VALUES('integrity-check')`)
	assert.NoError(t, err)

	err = s.DeleteCapture(ctx, id)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSearchCapturesHighlightsMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", OCRText: "the quick brown fox"})
	insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:01:00Z", OCRText: "lazy dog"})

	res, err := s.SearchCaptures(ctx, "quick", 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, id, res[0].ID)
	assert.Contains(t, res[0].Snippet, "<mark>quick</mark>")
}

func TestSearchCapturesMatchesAppAndTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", AppName: "Firefox", WindowTitle: "Release notes"})

	res, err := s.SearchCaptures(ctx, "firefox", 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	res, err = s.SearchCaptures(ctx, "release notes", 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSearchCapturesQuotesOperators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", OCRText: "error NEAR the end"})

	for _, q := range []string{`NEAR(`, `"unbalanced`, `col:value`, `a OR`, `*`} {
		_, err := s.SearchCaptures(ctx, q, 5)
		assert.NoError(t, err, q)
	}

	res, err := s.SearchCaptures(ctx, "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearchCapturesRanksBestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", OCRText: "report draft with many unrelated words about lunch and weather and traffic"})
	best := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:01:00Z", OCRText: "report report report"})

	res, err := s.SearchCaptures(ctx, "report", 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, best, res[0].ID)
	assert.LessOrEqual(t, res[0].Rank, res[1].Rank)
}

func TestCaptureTimeline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", AppName: "Terminal"})
	second := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T11:00:00Z", AppName: "Firefox"})
	insertCapture(t, s, NewCapture{Timestamp: "2025-01-02T10:00:00Z", AppName: "Firefox"})

	rows, err := s.CaptureTimeline(ctx, "2025-01-01", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second, rows[0].ID)
	assert.Equal(t, first, rows[1].ID)

	rows, err = s.CaptureTimeline(ctx, "", "fire", 10, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.CaptureTimeline(ctx, "2025-01-01", "fire", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second, rows[0].ID)

	rows, err = s.CaptureTimeline(ctx, "", "", 1, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second, rows[0].ID)

	rows, err = s.CaptureTimeline(ctx, "1999-01-01", "", 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestCaptureTimelineFiltersAreLiteral(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", AppName: "Firefox"})
	lit := insertCapture(t, s, NewCapture{Timestamp: "2025-01-02T10:00:00Z", AppName: "my_app 100%"})

	rows, err := s.CaptureTimeline(ctx, "", "F_ref", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.CaptureTimeline(ctx, "", "%", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, lit, rows[0].ID)

	rows, err = s.CaptureTimeline(ctx, "", "Y_A", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, lit, rows[0].ID)

	rows, err = s.CaptureTimeline(ctx, "2025-01-0_", "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.CaptureTimeline(ctx, "2025-01-0%", "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSearchCapturesWrapsStoreErrors(t *testing.T) {
	s := newTestStore(t)
	insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", OCRText: "hello world"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SearchCaptures(ctx, "hello", 5)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStore))
}

func TestUnsyncedCaptures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	late := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T12:00:00Z"})
	early := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T09:00:00Z"})
	synced := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T08:00:00Z"})
	require.NoError(t, s.MarkCaptureSynced(ctx, synced))

	rows, err := s.UnsyncedCaptures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, early, rows[0].ID)
	assert.Equal(t, late, rows[1].ID)

	stats, err := s.CaptureStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Unsynced)
	assert.Equal(t, "2025-01-01T08:00:00Z", stats.Oldest)
	assert.Equal(t, "2025-01-01T12:00:00Z", stats.Newest)
}

func TestCaptureOptionalColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertCapture(t, s, NewCapture{Timestamp: "2025-01-01T10:00:00Z", ImageHash: "abc"})
	c, err := s.Capture(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, c.AppName)
	assert.Empty(t, c.OCRText)
	assert.Empty(t, c.ThumbnailPath)
	assert.False(t, c.Synced)

	var nulls int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM capture_entries WHERE ocr_text IS NULL AND app_name IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)

	h, err := s.LastCaptureHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", h)

	_, err = s.Capture(ctx, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
