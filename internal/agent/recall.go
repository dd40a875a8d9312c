package agent

import (
	"context"
	"strconv"
	"time"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/recall"
	"github.com/BGMLAI/exoskull/internal/store"
)

// RecallSettings is the recall section of the settings view.
type RecallSettings struct {
	Enabled      bool              `json:"enabled"`
	IntervalSecs int               `json:"interval_secs"`
	StorageMode  string            `json:"storage_mode"`
	Exclusions   []store.Exclusion `json:"exclusions"`
}

// StartRecall begins periodic capture and remembers it across restarts.
func (a *Agent) StartRecall(ctx context.Context) error {
	if a.Running(TaskRecall) {
		return apperr.Config("Capture already running")
	}
	if err := a.launchRecall(ctx); err != nil {
		return err
	}
	return a.store.SetSetting(ctx, store.KeyRecallEnabled, "true")
}

func (a *Agent) launchRecall(ctx context.Context) error {
	if a.capture == nil {
		return apperr.Device("screen capture is not available", nil)
	}
	interval := time.Duration(a.store.SettingInt(ctx, store.KeyRecallInterval, 30)) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	rec := recall.NewRecorder(a.capture, a.store, a.ocr, recall.Options{
		Interval:    interval,
		Root:        a.cfg.RecallDir(),
		ThumbWidth:  a.cfg.Recall.ThumbnailWidth,
		ThumbHeight: a.cfg.Recall.ThumbnailHeight,
	}, a.logger.Named("recall"))

	if !a.spawn(TaskRecall, rec.Run) {
		return apperr.Config("Capture already running")
	}
	return nil
}

// StopRecall trips the capture loop's stop token. It returns at once; a
// tick in progress finishes on its own.
func (a *Agent) StopRecall(ctx context.Context) error {
	a.cancel(TaskRecall)
	return a.store.SetSetting(ctx, store.KeyRecallEnabled, "false")
}

// RecallRunning reports whether the capture loop is active.
func (a *Agent) RecallRunning() bool {
	return a.Running(TaskRecall)
}

// SearchRecall runs a full-text query; limit defaults to 50.
func (a *Agent) SearchRecall(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.store.SearchCaptures(ctx, query, limit)
}

// RecallTimeline lists captures newest first; limit defaults to 100.
func (a *Agent) RecallTimeline(ctx context.Context, date, app string, limit, offset int) ([]store.CaptureEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, apperr.Config("invalid date %q, expected YYYY-MM-DD", date)
		}
	}
	return a.store.CaptureTimeline(ctx, date, app, limit, offset)
}

// Capture returns one entry by id.
func (a *Agent) Capture(ctx context.Context, id int64) (*store.CaptureEntry, error) {
	return a.store.Capture(ctx, id)
}

func (a *Agent) RecallSettings(ctx context.Context) (RecallSettings, error) {
	exclusions, err := a.store.Exclusions(ctx)
	if err != nil {
		return RecallSettings{}, err
	}
	return RecallSettings{
		Enabled:      a.store.SettingBool(ctx, store.KeyRecallEnabled, false),
		IntervalSecs: a.store.SettingInt(ctx, store.KeyRecallInterval, 30),
		StorageMode:  a.store.SettingString(ctx, store.KeyRecallStorageMode, store.StorageLocal),
		Exclusions:   exclusions,
	}, nil
}

// UpdateRecallSettings changes the interval and/or storage mode. A running
// capture loop is restarted to pick up a new interval.
func (a *Agent) UpdateRecallSettings(ctx context.Context, intervalSecs *int, storageMode *string) error {
	values := map[string]string{}
	if intervalSecs != nil {
		if *intervalSecs < 1 {
			return apperr.Config("interval must be at least 1 second")
		}
		values[store.KeyRecallInterval] = strconv.Itoa(*intervalSecs)
	}
	if storageMode != nil {
		switch *storageMode {
		case store.StorageLocal, store.StorageCloud, store.StorageLocalCloud:
			values[store.KeyRecallStorageMode] = *storageMode
		default:
			return apperr.Config("unknown storage mode %q", *storageMode)
		}
	}
	if len(values) == 0 {
		return nil
	}
	if err := a.store.SetSettings(ctx, values); err != nil {
		return err
	}

	if intervalSecs != nil {
		return a.restartRecall(ctx)
	}
	return nil
}

// restartRecall replaces a running capture loop so it re-reads its
// settings and exclusion snapshot. The old loop is allowed to finish its
// tick first.
func (a *Agent) restartRecall(ctx context.Context) error {
	done := a.cancel(TaskRecall)
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.launchRecall(ctx)
}

// AddExclusion records a pattern; a running capture loop is restarted to
// apply it.
func (a *Agent) AddExclusion(ctx context.Context, pattern, typ string) (int64, error) {
	id, err := a.store.AddExclusion(ctx, pattern, typ)
	if err != nil {
		return 0, err
	}
	return id, a.restartRecall(ctx)
}

func (a *Agent) RemoveExclusion(ctx context.Context, id int64) error {
	if err := a.store.RemoveExclusion(ctx, id); err != nil {
		return err
	}
	return a.restartRecall(ctx)
}

func (a *Agent) Exclusions(ctx context.Context) ([]store.Exclusion, error) {
	return a.store.Exclusions(ctx)
}

// SyncRecall ships one batch of unsynced captures now.
func (a *Agent) SyncRecall(ctx context.Context) (int, error) {
	return a.syncer.SyncOnce(ctx)
}

// SetRecallEnabled persists the recall flag without touching a capture
// loop. Start resumes capture when the flag is set.
func (a *Agent) SetRecallEnabled(ctx context.Context, enabled bool) error {
	return a.store.SetSetting(ctx, store.KeyRecallEnabled, strconv.FormatBool(enabled))
}
