package recall

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BGMLAI/exoskull/internal/capture"
	"github.com/BGMLAI/exoskull/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct{ app, title string }

// fakeSource replays frames and windows; the last element repeats.
type fakeSource struct {
	mu      sync.Mutex
	frames  []*capture.RawImage
	windows []window
	errs    []error
	calls   int
}

func (f *fakeSource) Screenshot(context.Context) (*capture.RawImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.frames) {
		i = len(f.frames) - 1
	}
	return f.frames[i], nil
}

func (f *fakeSource) ActiveWindow(context.Context) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.windows) == 0 {
		return "", ""
	}
	i := f.calls - 1
	if i >= len(f.windows) {
		i = len(f.windows) - 1
	}
	return f.windows[i].app, f.windows[i].title
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// frame returns a 640x360 image whose sampled bytes depend on seed.
func frame(seed byte) *capture.RawImage {
	w, h := 640, 360
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = seed + byte(i%7)
	}
	return &capture.RawImage{Width: w, Height: h, Pix: pix}
}

type fixedOCR string

func (o fixedOCR) ExtractText(context.Context, string) (string, error) { return string(o), nil }

func newTestIndex(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Initialize(context.Background(), filepath.Join(t.TempDir(), "exoskull.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRecorder(t *testing.T, src Source, idx Index, ocr OCR) (*Recorder, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "recall")
	r := NewRecorder(src, idx, ocr, Options{Interval: 2 * time.Second, Root: root}, nil)
	base := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	n := 0
	r.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	require.NoError(t, r.Prepare(context.Background()))
	return r, root
}

func countPNGs(t *testing.T, root string) (full, thumbs int) {
	t.Helper()
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".png" {
			if len(info.Name()) > 6 && info.Name()[:6] == "thumb_" {
				thumbs++
			} else {
				full++
			}
		}
		return nil
	})
	return
}

func TestUnchangedScreenStoredOnce(t *testing.T) {
	idx := newTestIndex(t)
	src := &fakeSource{frames: []*capture.RawImage{frame(1)}}
	r, root := newTestRecorder(t, src, idx, nil)
	ctx := context.Background()

	outcomes := []Outcome{}
	for i := 0; i < 3; i++ {
		o, _, err := r.Tick(ctx)
		require.NoError(t, err)
		outcomes = append(outcomes, o)
	}
	assert.Equal(t, []Outcome{Captured, Unchanged, Unchanged}, outcomes)

	stats, err := idx.CaptureStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	full, thumbs := countPNGs(t, root)
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, thumbs)
}

func TestExcludedAppIsSkipped(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_, err := idx.AddExclusion(ctx, "PrivateApp", store.ExcludeAppName)
	require.NoError(t, err)

	src := &fakeSource{
		frames:  []*capture.RawImage{frame(1), frame(2)},
		windows: []window{{"PrivateApp", "secret"}, {"Other", "public"}},
	}
	r, _ := newTestRecorder(t, src, idx, nil)

	o, _, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Excluded, o)
	o, id, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Captured, o)

	rows, err := idx.CaptureTimeline(ctx, "", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, "Other", rows[0].AppName)
}

func TestExclusionMatchesAnyFieldIgnoringCase(t *testing.T) {
	r := &Recorder{exclusions: []string{"bank", "incognito"}}
	assert.True(t, r.excluded("MyBANKapp", ""))
	assert.True(t, r.excluded("Chrome", "New Incognito Tab"))
	assert.False(t, r.excluded("Editor", "notes.md"))
	assert.False(t, r.excluded("", ""))
}

func TestConsecutiveRowsNeverShareHash(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_, err := idx.AddExclusion(ctx, "vault", store.ExcludeWindowTitle)
	require.NoError(t, err)

	// A, then B excluded, then A again
	src := &fakeSource{
		frames:  []*capture.RawImage{frame(1), frame(2), frame(1), frame(3)},
		windows: []window{{"Editor", "a"}, {"Editor", "Vault"}, {"Editor", "a"}, {"Editor", "c"}},
	}
	r, _ := newTestRecorder(t, src, idx, nil)

	var got []Outcome
	for i := 0; i < 4; i++ {
		o, _, err := r.Tick(ctx)
		require.NoError(t, err)
		got = append(got, o)
	}
	assert.Equal(t, []Outcome{Captured, Excluded, Unchanged, Captured}, got)

	rows, err := idx.CaptureTimeline(ctx, "", "", 10, 0)
	require.NoError(t, err)
	for i := 1; i < len(rows); i++ {
		assert.NotEqual(t, rows[i-1].ImageHash, rows[i].ImageHash)
	}
}

func TestRestartDoesNotDuplicateLastFrame(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	src := &fakeSource{frames: []*capture.RawImage{frame(9)}}

	r, _ := newTestRecorder(t, src, idx, nil)
	o, _, err := r.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, Captured, o)

	again, _ := newTestRecorder(t, src, idx, nil)
	o, _, err = again.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, o)
}

func TestScreenshotFailureAbortsTick(t *testing.T) {
	idx := newTestIndex(t)
	src := &fakeSource{
		frames: []*capture.RawImage{frame(1)},
		errs:   []error{errors.New("no display")},
	}
	r, _ := newTestRecorder(t, src, idx, nil)
	ctx := context.Background()

	o, _, err := r.Tick(ctx)
	assert.Error(t, err)
	assert.Equal(t, Failed, o)

	o, _, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Captured, o)
}

func TestWriteFailureSkipsIndexing(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	src := &fakeSource{frames: []*capture.RawImage{frame(1)}}
	r, root := newTestRecorder(t, src, idx, nil)

	// a regular file where the year directory should go
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2025"), nil, 0o644))

	o, _, err := r.Tick(ctx)
	assert.Error(t, err)
	assert.Equal(t, Failed, o)
	stats, err := idx.CaptureStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestCaptureRowContents(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	src := &fakeSource{frames: []*capture.RawImage{frame(4)}, windows: []window{{"Terminal", "~/src"}}}
	r, root := newTestRecorder(t, src, idx, fixedOCR("  make test  "))

	_, id, err := r.Tick(ctx)
	require.NoError(t, err)

	c, err := idx.Capture(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-04T05:06:08Z", c.Timestamp)
	assert.Equal(t, filepath.Join(root, "2025", "03", "04", "05-06-08.png"), c.ImagePath)
	assert.Equal(t, filepath.Join(root, "2025", "03", "04", "thumb_05-06-08.png"), c.ThumbnailPath)
	assert.Equal(t, capture.Fingerprint(frame(4).Pix), c.ImageHash)
	assert.Equal(t, "make test", c.OCRText)
	assert.Equal(t, "Terminal", c.AppName)
	assert.FileExists(t, c.ImagePath)

	f, err := os.Open(c.ThumbnailPath)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 180, cfg.Height)

	res, err := idx.SearchCaptures(ctx, "terminal", 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestEmptyOCRStillSearchableByTitle(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	src := &fakeSource{frames: []*capture.RawImage{frame(5)}, windows: []window{{"Mail", "Quarterly budget"}}}
	r, _ := newTestRecorder(t, src, idx, fixedOCR(""))

	_, id, err := r.Tick(ctx)
	require.NoError(t, err)
	c, err := idx.Capture(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, c.OCRText)

	res, err := idx.SearchCaptures(ctx, "budget", 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestPNGRoundTrip(t *testing.T) {
	img := frame(7).RGBA()
	path := filepath.Join(t.TempDir(), "05-06-07.png")
	require.NoError(t, writePNG(path, img))

	want, err := encodePNG(img)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	decoded, err := png.Decode(bytes.NewReader(got))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 360), decoded.Bounds())
}

func TestFitWithin(t *testing.T) {
	tests := []struct{ w, h, tw, th int }{
		{1920, 1080, 320, 180},
		{2560, 1600, 288, 180},
		{1080, 1920, 101, 180},
		{200, 100, 200, 100},
		{10000, 1, 320, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, 320, 180)
		assert.Equal(t, tt.tw, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.th, h, "%dx%d", tt.w, tt.h)
	}
}

func TestFreeNameAvoidsOverwrite(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "10-00-00.png", freeName(dir, "10-00-00"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-00-00.png"), nil, 0o644))
	assert.Equal(t, "10-00-00-1.png", freeName(dir, "10-00-00"))
}

func TestRunStopsOnCancel(t *testing.T) {
	idx := newTestIndex(t)
	src := &fakeSource{frames: []*capture.RawImage{frame(1), frame(2), frame(3)}}
	r := NewRecorder(src, idx, nil, Options{Interval: 10 * time.Millisecond, Root: t.TempDir()}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return src.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("capture loop did not stop")
	}
	stats, err := idx.CaptureStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
}
