package agent

import (
	"context"
	"os"
	"path/filepath"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/events"
	"github.com/BGMLAI/exoskull/internal/store"
	"github.com/BGMLAI/exoskull/internal/uploader"
	"github.com/BGMLAI/exoskull/internal/watcher"
)

// queueListLimit bounds the upload queue view.
const queueListLimit = 50

// AddWatchedFolder records path and, when the watcher runs, starts
// watching it right away.
func (a *Agent) AddWatchedFolder(ctx context.Context, path string) (int64, error) {
	if a.watcher != nil && a.Running(TaskWatcher) {
		return a.watcher.AddFolder(ctx, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, apperr.Config("invalid path: %v", err)
	}
	if err := watcher.ValidateFolder(abs); err != nil {
		return 0, err
	}
	return a.store.AddWatchedFolder(ctx, abs)
}

func (a *Agent) RemoveWatchedFolder(ctx context.Context, id int64) error {
	if a.watcher != nil && a.Running(TaskWatcher) {
		return a.watcher.RemoveFolder(ctx, id)
	}
	_, err := a.store.RemoveWatchedFolder(ctx, id)
	return err
}

func (a *Agent) WatchedFolders(ctx context.Context) ([]store.WatchedFolder, error) {
	return a.store.WatchedFolders(ctx)
}

// UploadFile queues a single file chosen by the user.
func (a *Agent) UploadFile(ctx context.Context, path string) (int64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, apperr.Config("invalid path: %v", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, apperr.Config("file does not exist: %s", path)
	}
	if !info.Mode().IsRegular() {
		return 0, apperr.Config("not a regular file: %s", path)
	}
	if limit := a.cfg.MaxFileSize(); limit > 0 && info.Size() > limit {
		return 0, apperr.Config("file exceeds %d MB limit", a.cfg.Uploader.MaxFileSizeMB)
	}

	name := filepath.Base(abs)
	id, err := a.store.EnqueueUpload(ctx, abs, name)
	if err != nil {
		return 0, err
	}
	a.emitter.Emit(events.UploadQueued, events.UploadQueuedPayload{ID: id, FileName: name, FilePath: abs})
	return id, nil
}

// UploadQueue lists the newest queue rows.
func (a *Agent) UploadQueue(ctx context.Context) ([]store.QueueItem, error) {
	return a.store.Uploads(ctx, queueListLimit)
}

// SyncResult reports a manual sync.
type SyncResult struct {
	Uploads uploader.Result `json:"uploads"`
	Recall  int             `json:"recall_synced"`
}

// SyncNow drains one upload batch and one recall batch immediately.
func (a *Agent) SyncNow(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	var err error
	if res.Uploads, err = a.uploader.RunOnce(ctx); err != nil {
		return res, err
	}
	res.Recall, err = a.syncer.SyncOnce(ctx)
	return res, err
}
