package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/events"
	"github.com/BGMLAI/exoskull/internal/store"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, opts Options) (*Watcher, *store.Store, *events.Recorder) {
	t.Helper()
	st, err := store.Initialize(context.Background(), filepath.Join(t.TempDir(), "exoskull.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := &events.Recorder{}
	w, err := NewWatcher(st, rec, opts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.fsWatcher.Close() })
	return w, st, rec
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestShouldProcess(t *testing.T) {
	w, _, _ := newTestWatcher(t, Options{MaxSize: 10})
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"notes.md", "hi", true},
		{"report.pdf", "hi", true},
		{"~$report.docx", "hi", false},
		{"download.part", "hi", false},
		{"movie.crdownload", "hi", false},
		{".notes.md.swp", "hi", false},
		{"scratch.tmp", "hi", false},
		{".DS_Store", "hi", false},
		{"big.bin", "this is more than ten bytes", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			writeFile(t, path, tt.content)
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.shouldProcess(path, info))
		})
	}
}

func TestHandleEventEnqueuesFile(t *testing.T) {
	w, st, rec := newTestWatcher(t, Options{})
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, path, "hello")

	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Create})

	items, err := st.Uploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, path, items[0].FilePath)
	assert.Equal(t, "a.txt", items[0].FileName)
	require.NotNil(t, items[0].FileSize)
	assert.EqualValues(t, 5, *items[0].FileSize)

	queued := rec.Named(events.UploadQueued)
	require.Len(t, queued, 1)
	assert.Equal(t, events.UploadQueuedPayload{ID: items[0].ID, FileName: "a.txt", FilePath: path}, queued[0].Payload)
}

func TestCreateThenWriteQueuedOnce(t *testing.T) {
	w, st, _ := newTestWatcher(t, Options{})
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	path := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, path, "hello")

	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Create})
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Write})
	items, err := st.Uploads(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	now = now.Add(time.Minute)
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Write})
	items, err = st.Uploads(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestWriteAfterUploadQueuedAgain(t *testing.T) {
	w, st, rec := newTestWatcher(t, Options{})
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	path := filepath.Join(t.TempDir(), "draft.txt")
	writeFile(t, path, "")
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Create})
	items, err := st.PendingUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, st.MarkUploaded(ctx, items[0].ID))

	now = now.Add(time.Second)
	writeFile(t, path, "final content")
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Write})

	pending, err := st.PendingUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, path, pending[0].FilePath)
	assert.NotEqual(t, items[0].ID, pending[0].ID)
	assert.Len(t, rec.Named(events.UploadQueued), 2)
}

func TestWriteAfterFailedUploadQueuedAgain(t *testing.T) {
	w, st, _ := newTestWatcher(t, Options{})
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	path := filepath.Join(t.TempDir(), "draft.txt")
	writeFile(t, path, "v1")
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Create})
	items, err := st.PendingUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, st.MarkUploadFailed(ctx, items[0].ID, "Server error (503): busy"))

	now = now.Add(500 * time.Millisecond)
	writeFile(t, path, "v2")
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Write})

	pending, err := st.PendingUploads(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestHandleEventIgnoresRemovalsAndMissingFiles(t *testing.T) {
	w, st, rec := newTestWatcher(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()

	w.handleEvent(ctx, fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Create})
	path := filepath.Join(dir, "kept.txt")
	writeFile(t, path, "x")
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Remove})
	w.handleEvent(ctx, fsnotify.Event{Name: path, Op: fsnotify.Chmod})

	items, err := st.Uploads(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, rec.Events())
}

func TestNewDirectoryWatchedAndDrained(t *testing.T) {
	w, st, _ := newTestWatcher(t, Options{})
	ctx := context.Background()
	sub := filepath.Join(t.TempDir(), "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "deeper"), 0755))
	writeFile(t, filepath.Join(sub, "one.txt"), "1")
	writeFile(t, filepath.Join(sub, "deeper", "two.txt"), "2")

	w.handleEvent(ctx, fsnotify.Event{Name: sub, Op: fsnotify.Create})

	items, err := st.Uploads(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Contains(t, w.fsWatcher.WatchList(), filepath.Join(sub, "deeper"))
}

func TestAddFolderValidates(t *testing.T) {
	w, _, _ := newTestWatcher(t, Options{})
	ctx := context.Background()

	_, err := w.AddFolder(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.True(t, apperr.Is(err, apperr.KindConfig))

	file := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, file, "x")
	_, err = w.AddFolder(ctx, file)
	assert.True(t, apperr.Is(err, apperr.KindConfig))

	_, err = w.AddFolder(ctx, "/proc")
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func TestAddAndRemoveFolder(t *testing.T) {
	w, st, _ := newTestWatcher(t, Options{})
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0755))

	id, err := w.AddFolder(ctx, root)
	require.NoError(t, err)
	assert.True(t, w.Watching(root))
	assert.Contains(t, w.fsWatcher.WatchList(), filepath.Join(root, "nested"))

	folders, err := st.WatchedFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, root, folders[0].Path)

	require.NoError(t, w.RemoveFolder(ctx, id))
	assert.False(t, w.Watching(root))
	assert.Empty(t, w.fsWatcher.WatchList())

	err = w.RemoveFolder(ctx, id)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRunQueuesNewFiles(t *testing.T) {
	w, st, rec := newTestWatcher(t, Options{})
	root := t.TempDir()
	missing := filepath.Join(t.TempDir(), "missing")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := st.AddWatchedFolder(ctx, root)
	require.NoError(t, err)
	_, err = st.AddWatchedFolder(ctx, missing)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool { return w.Watching(root) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, w.Watching(missing))

	writeFile(t, filepath.Join(root, "report.md"), "# hi")
	writeFile(t, filepath.Join(root, "report.md.tmp"), "partial")

	require.Eventually(t, func() bool {
		return len(rec.Named(events.UploadQueued)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	items, err := st.Uploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "report.md", items[0].FileName)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
