package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/BGMLAI/exoskull/internal/store"
)

// SyncIndex is the part of the store RecallSync reads and flips.
type SyncIndex interface {
	UnsyncedCaptures(ctx context.Context, limit int) ([]store.CaptureEntry, error)
	MarkCaptureSynced(ctx context.Context, id int64) error
	SettingString(ctx context.Context, key, def string) string
}

// RecallUploader ships one capture to the remote knowledge store.
type RecallUploader interface {
	UploadRecall(ctx context.Context, png []byte, timestamp, metadata string) error
}

// Syncer mirrors unsynced captures to the remote service. In the default
// "local" storage mode it ships nothing and leaves every row unsynced; it
// logs that once until the mode changes.
type Syncer struct {
	index    SyncIndex
	remote   RecallUploader
	interval time.Duration
	batch    int
	logger   *logging.Logger

	disabledLogged atomic.Bool
}

func NewSyncer(index SyncIndex, remote RecallUploader, interval time.Duration, batch int, logger *logging.Logger) *Syncer {
	if batch <= 0 {
		batch = 10
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Syncer{index: index, remote: remote, interval: interval, batch: batch, logger: logger}
}

// metadata is the JSON text part sent alongside each image. Absent values
// are sent as null.
type metadata struct {
	Timestamp   string  `json:"timestamp"`
	AppName     *string `json:"app_name"`
	WindowTitle *string `json:"window_title"`
	OCRText     *string `json:"ocr_text"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func captureMetadata(e store.CaptureEntry) (string, error) {
	b, err := json.Marshal(metadata{
		Timestamp:   e.Timestamp,
		AppName:     optional(e.AppName),
		WindowTitle: optional(e.WindowTitle),
		OCRText:     optional(e.OCRText),
	})
	return string(b), err
}

// Run syncs every interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SyncOnce(ctx); err != nil {
				s.logger.Warn("recall sync: %v", err)
			}
		}
	}
}

// SyncOnce ships up to one batch and returns how many rows were flipped.
// A failing row is logged and skipped; only a failure to read the batch is
// returned. With storage mode "local" nothing leaves the machine.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	if s.index.SettingString(ctx, store.KeyRecallStorageMode, store.StorageLocal) == store.StorageLocal {
		if s.disabledLogged.CompareAndSwap(false, true) {
			s.logger.Info("recall sync disabled: storage mode is %q", store.StorageLocal)
		}
		return 0, nil
	}
	s.disabledLogged.Store(false)

	rows, err := s.index.UnsyncedCaptures(ctx, s.batch)
	if err != nil {
		return 0, fmt.Errorf("reading unsynced captures: %w", err)
	}

	synced := 0
	for _, row := range rows {
		log := s.logger.WithFields(map[string]interface{}{"id": row.ID, "path": row.ImagePath})

		data, err := os.ReadFile(row.ImagePath)
		if err != nil {
			log.Warn("recall sync read failed: %v", err)
			continue
		}
		meta, err := captureMetadata(row)
		if err != nil {
			log.Warn("recall sync metadata failed: %v", err)
			continue
		}
		if err := s.remote.UploadRecall(ctx, data, row.Timestamp, meta); err != nil {
			log.Warn("recall upload failed: %v", err)
			continue
		}
		if err := s.index.MarkCaptureSynced(ctx, row.ID); err != nil {
			log.Error("mark synced failed: %v", err)
			continue
		}
		synced++
	}

	if synced > 0 {
		s.logger.Info("synced %d of %d captures", synced, len(rows))
	}
	return synced, nil
}
