// Package recall runs the screen capture loop and mirrors captures to the
// remote knowledge store.
package recall

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BGMLAI/exoskull/internal/capture"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/BGMLAI/exoskull/internal/store"
)

// Source is the screenshot and active-window façade.
type Source interface {
	Screenshot(ctx context.Context) (*capture.RawImage, error)
	ActiveWindow(ctx context.Context) (app, title string)
}

// Index is the part of the store the capture loop writes to.
type Index interface {
	InsertCapture(ctx context.Context, c store.NewCapture) (int64, error)
	Exclusions(ctx context.Context) ([]store.Exclusion, error)
	LastCaptureHash(ctx context.Context) (string, error)
}

// Options configures a Recorder.
type Options struct {
	Interval    time.Duration
	Root        string // ~/.exoskull/recall
	ThumbWidth  int
	ThumbHeight int
}

// Outcome says what a tick did.
type Outcome int

const (
	Captured Outcome = iota
	Unchanged
	Excluded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Captured:
		return "captured"
	case Unchanged:
		return "unchanged"
	case Excluded:
		return "excluded"
	default:
		return "failed"
	}
}

// Recorder is the periodic capture loop. One Recorder serves one Run; its
// hash state is not shared.
type Recorder struct {
	source Source
	index  Index
	ocr    OCR
	opts   Options
	logger *logging.Logger
	now    func() time.Time

	lastHash   string   // gate: fingerprint of the previous tick
	lastStored string   // fingerprint of the newest indexed row
	exclusions []string // lowercased snapshot taken at start
}

func NewRecorder(source Source, index Index, ocr OCR, opts Options, logger *logging.Logger) *Recorder {
	if ocr == nil {
		ocr = NoOCR{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.ThumbWidth <= 0 || opts.ThumbHeight <= 0 {
		opts.ThumbWidth, opts.ThumbHeight = 320, 180
	}
	return &Recorder{
		source: source,
		index:  index,
		ocr:    ocr,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Prepare snapshots the exclusion list and the newest stored fingerprint.
// Run calls it; tests may call it directly before Tick.
func (r *Recorder) Prepare(ctx context.Context) error {
	list, err := r.index.Exclusions(ctx)
	if err != nil {
		return err
	}
	r.exclusions = r.exclusions[:0]
	for _, e := range list {
		r.exclusions = append(r.exclusions, strings.ToLower(e.Pattern))
	}

	r.lastStored, err = r.index.LastCaptureHash(ctx)
	return err
}

// Run ticks every Interval until ctx is cancelled. Tick failures are logged
// and never end the loop.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.Prepare(ctx); err != nil {
		return err
	}
	r.logger.WithFields(map[string]interface{}{
		"interval":   r.opts.Interval,
		"exclusions": len(r.exclusions),
	}).Info("capture loop started")

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("capture loop stopped")
			return nil
		case <-ticker.C:
			outcome, id, err := r.Tick(ctx)
			switch {
			case err != nil:
				r.logger.Error("capture failed: %v", err)
			case outcome == Captured:
				r.logger.WithContext("id", id).Debug("screenshot captured")
			default:
				r.logger.Debug("screenshot skipped (%s)", outcome)
			}
		}
	}
}

// excluded reports whether any pattern occurs in app or title, ignoring case.
func (r *Recorder) excluded(app, title string) bool {
	app, title = strings.ToLower(app), strings.ToLower(title)
	for _, p := range r.exclusions {
		if p == "" {
			continue
		}
		if strings.Contains(app, p) || strings.Contains(title, p) {
			return true
		}
	}
	return false
}

// Tick performs one capture attempt.
func (r *Recorder) Tick(ctx context.Context) (Outcome, int64, error) {
	raw, err := r.source.Screenshot(ctx)
	if err != nil {
		return Failed, 0, err
	}

	h := capture.Fingerprint(raw.Pix)
	if h == r.lastHash {
		return Unchanged, 0, nil
	}
	r.lastHash = h
	// A frame equal to the last stored one is skipped even after an excluded frame.
	if h == r.lastStored {
		return Unchanged, 0, nil
	}

	app, title := r.source.ActiveWindow(ctx)
	if r.excluded(app, title) {
		return Excluded, 0, nil
	}

	now := r.now().UTC()
	dir, base := imagePaths(r.opts.Root, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Failed, 0, err
	}
	name := freeName(dir, base)
	imagePath := filepath.Join(dir, name)
	thumbPath := filepath.Join(dir, "thumb_"+name)

	img := raw.RGBA()
	if err := writePNG(imagePath, img); err != nil {
		return Failed, 0, err
	}
	if err := writePNG(thumbPath, thumbnail(img, r.opts.ThumbWidth, r.opts.ThumbHeight)); err != nil {
		os.Remove(imagePath)
		return Failed, 0, err
	}

	text, err := r.ocr.ExtractText(ctx, imagePath)
	if err != nil {
		r.logger.WithContext("path", imagePath).Warn("ocr failed: %v", err)
		text = ""
	}

	id, err := r.index.InsertCapture(ctx, store.NewCapture{
		Timestamp:     now.Format(time.RFC3339),
		AppName:       app,
		WindowTitle:   title,
		OCRText:       strings.TrimSpace(text),
		ImagePath:     imagePath,
		ThumbnailPath: thumbPath,
		ImageHash:     h,
	})
	if err != nil {
		os.Remove(imagePath)
		os.Remove(thumbPath)
		return Failed, 0, err
	}
	r.lastStored = h
	return Captured, id, nil
}
