// Package uploader drains the persistent upload queue into the remote
// knowledge store.
package uploader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BGMLAI/exoskull/internal/events"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/BGMLAI/exoskull/internal/store"
)

// Queue is the part of the store the worker drives.
type Queue interface {
	PendingUploads(ctx context.Context, limit int) ([]store.QueueItem, error)
	MarkUploaded(ctx context.Context, id int64) error
	MarkUploadFailed(ctx context.Context, id int64, msg string) error
	RetryFailedUploads(ctx context.Context, maxRetries int) (int64, error)
}

// FileUploader ships one file.
type FileUploader interface {
	UploadFile(ctx context.Context, name string, data []byte) error
}

// Options tunes the worker. Zero values fall back to the defaults.
type Options struct {
	Interval  time.Duration
	BatchSize int
	// MaxRetries counts re-arms after the first failure, so a row is
	// attempted at most MaxRetries+1 times.
	MaxRetries int
}

// Result summarises one tick.
type Result struct {
	Uploaded int   `json:"uploaded"`
	Failed   int   `json:"failed"`
	Rearmed  int64 `json:"rearmed"`
}

// Worker uploads pending queue rows every interval.
type Worker struct {
	queue   Queue
	remote  FileUploader
	emitter events.Emitter
	opts    Options
	logger  *logging.Logger
}

func NewWorker(queue Queue, remote FileUploader, emitter events.Emitter, opts Options, logger *logging.Logger) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Worker{queue: queue, remote: remote, emitter: emitter, opts: opts, logger: logger}
}

// Run ticks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Warn("upload tick: %v", err)
			}
		}
	}
}

// RunOnce uploads one batch and then re-arms failed rows that still have
// retries left. Per-row failures are recorded on the row, not returned.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	items, err := w.queue.PendingUploads(ctx, w.opts.BatchSize)
	if err != nil {
		return res, fmt.Errorf("reading pending uploads: %w", err)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return res, nil
		}
		if w.upload(ctx, item) {
			res.Uploaded++
		} else {
			res.Failed++
		}
	}

	// Rows stay re-armable while retries <= MaxRetries.
	res.Rearmed, err = w.queue.RetryFailedUploads(ctx, w.opts.MaxRetries+1)
	if err != nil {
		return res, fmt.Errorf("re-arming failed uploads: %w", err)
	}
	return res, nil
}

func (w *Worker) upload(ctx context.Context, item store.QueueItem) bool {
	log := w.logger.WithFields(map[string]interface{}{"id": item.ID, "file": item.FileName})

	data, err := os.ReadFile(item.FilePath)
	if err != nil {
		w.fail(ctx, log, item, fmt.Sprintf("Read error: %v", err))
		return false
	}

	if err := w.remote.UploadFile(ctx, item.FileName, data); err != nil {
		w.fail(ctx, log, item, err.Error())
		return false
	}

	if err := w.queue.MarkUploaded(ctx, item.ID); err != nil {
		log.Error("mark uploaded failed: %v", err)
		return false
	}
	log.Info("uploaded %d bytes", len(data))
	w.emitter.Emit(events.UploadComplete, events.UploadCompletePayload{ID: item.ID, FileName: item.FileName})
	return true
}

func (w *Worker) fail(ctx context.Context, log *logging.Logger, item store.QueueItem, msg string) {
	log.Warn("upload failed: %s", msg)
	if err := w.queue.MarkUploadFailed(ctx, item.ID, msg); err != nil {
		log.Error("mark failed failed: %v", err)
	}
	w.emitter.Emit(events.UploadFailed, events.UploadFailedPayload{ID: item.ID, FileName: item.FileName, Error: msg})
}
