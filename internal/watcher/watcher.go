package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/events"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/BGMLAI/exoskull/internal/store"
	"github.com/fsnotify/fsnotify"
)

// DefaultIgnore lists editor and download temp files that are never queued.
var DefaultIgnore = []string{"~$*", "*.tmp", "*.swp", "*.part", "*.crdownload", ".DS_Store"}

// settle collapses the Create+Write pair most editors produce for one save.
// An event is only collapsed into a row that is still pending; the worker
// reads the file when it uploads, so that row carries the latest content.
const settle = 2 * time.Second

// Store interface for folder management and enqueueing
type Store interface {
	AddWatchedFolder(ctx context.Context, path string) (int64, error)
	WatchedFolders(ctx context.Context) ([]store.WatchedFolder, error)
	RemoveWatchedFolder(ctx context.Context, id int64) (string, error)
	EnqueueUpload(ctx context.Context, filePath, fileName string) (int64, error)
	Upload(ctx context.Context, id int64) (*store.QueueItem, error)
}

// queued is the last row enqueued for a path.
type queued struct {
	id int64
	at time.Time
}

// Options configures filtering. Zero values use the defaults.
type Options struct {
	Ignore  []string
	MaxSize int64
}

// Watcher monitors folder trees and queues changed files for upload
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	store     Store
	emitter   events.Emitter
	ignore    []string
	maxSize   int64
	logger    *logging.Logger
	now       func() time.Time

	mu     sync.Mutex
	roots  map[string]bool
	recent map[string]queued
}

// NewWatcher creates a folder watcher with fsnotify initialization
func NewWatcher(st Store, emitter events.Emitter, opts Options, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithContext("error", err.Error()).Error("failed to create fsnotify watcher")
		return nil, apperr.Device("failed to create fsnotify watcher", err)
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100 * 1024 * 1024
	}

	return &Watcher{
		fsWatcher: fsw,
		store:     st,
		emitter:   emitter,
		ignore:    opts.Ignore,
		maxSize:   opts.MaxSize,
		logger:    logger,
		now:       time.Now,
		roots:     make(map[string]bool),
		recent:    make(map[string]queued),
	}, nil
}

// Run watches every enabled folder and processes events until ctx is
// cancelled. Folders that no longer exist are skipped with a warning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsWatcher.Close()

	folders, err := w.store.WatchedFolders(ctx)
	if err != nil {
		w.logger.WithContext("error", err.Error()).Error("failed to load watched folders")
		return fmt.Errorf("failed to load watched folders: %w", err)
	}

	watching := 0
	for _, folder := range folders {
		if !folder.Enabled {
			continue
		}
		if err := ValidateFolder(folder.Path); err != nil {
			w.logger.WithFields(map[string]interface{}{
				"folder_path": folder.Path,
				"error":       err.Error(),
			}).Warn("skipping invalid folder")
			continue
		}
		if err := w.watchTree(folder.Path); err != nil {
			w.logger.WithContext("folder_path", folder.Path).Warn("failed to watch folder: %v", err)
			continue
		}
		watching++
	}
	w.logger.WithContext("folder_count", watching).Info("file watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithContext("error", err.Error()).Error("watcher error")
		}
	}
}

// Close releases the fsnotify watcher. Run closes it as well on return.
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

// watchTree adds root and every directory below it.
func (w *Watcher) watchTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.WithContext("path", path).Debug("skipping unreadable entry: %v", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.WithContext("path", path).Warn("failed to watch directory: %v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.roots[filepath.Clean(root)] = true
	w.mu.Unlock()
	w.logger.WithContext("folder_path", root).Debug("watching folder")
	return nil
}

// unwatchTree drops root and its subdirectories from fsnotify.
func (w *Watcher) unwatchTree(root string) {
	root = filepath.Clean(root)
	prefix := root + string(filepath.Separator)
	for _, path := range w.fsWatcher.WatchList() {
		if path == root || strings.HasPrefix(path, prefix) {
			w.fsWatcher.Remove(path)
		}
	}
	w.mu.Lock()
	delete(w.roots, root)
	w.mu.Unlock()
}

// handleEvent queues created or modified regular files. New directories
// are watched and their current files queued.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		if !event.Has(fsnotify.Create) {
			return
		}
		w.logger.WithContext("path", event.Name).Debug("directory created")
		if err := w.watchTree(event.Name); err != nil {
			w.logger.WithContext("path", event.Name).Warn("failed to watch new directory: %v", err)
			return
		}
		filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
			if err == nil && d.Type().IsRegular() {
				if fi, err := d.Info(); err == nil {
					w.enqueue(ctx, path, fi)
				}
			}
			return nil
		})
		return
	}

	if info.Mode().IsRegular() {
		w.enqueue(ctx, event.Name, info)
	}
}

// shouldProcess applies the ignore list and the size limit.
func (w *Watcher) shouldProcess(path string, info os.FileInfo) bool {
	name := filepath.Base(path)
	for _, pattern := range w.ignore {
		if ok, _ := filepath.Match(pattern, name); ok {
			return false
		}
	}
	if info.Size() > w.maxSize {
		w.logger.WithFields(map[string]interface{}{
			"file_path": path,
			"size":      info.Size(),
		}).Warn("file exceeds size limit (%d bytes)", w.maxSize)
		return false
	}
	return true
}

func (w *Watcher) enqueue(ctx context.Context, path string, info os.FileInfo) {
	if !w.shouldProcess(path, info) {
		return
	}

	now := w.now()
	w.mu.Lock()
	last, seen := w.recent[path]
	for p, q := range w.recent {
		if now.Sub(q.at) >= settle {
			delete(w.recent, p)
		}
	}
	w.mu.Unlock()
	if seen && now.Sub(last.at) < settle && w.stillPending(ctx, last.id) {
		return
	}

	logger := w.logger.WithContext("file_path", path)
	name := filepath.Base(path)
	id, err := w.store.EnqueueUpload(ctx, path, name)
	if err != nil {
		logger.WithContext("error", err.Error()).Error("failed to enqueue file")
		return
	}
	w.mu.Lock()
	w.recent[path] = queued{id: id, at: now}
	w.mu.Unlock()

	logger.Info("queued for upload")
	w.emitter.Emit(events.UploadQueued, events.UploadQueuedPayload{ID: id, FileName: name, FilePath: path})
}

// stillPending reports whether row id has not been picked up by the worker.
func (w *Watcher) stillPending(ctx context.Context, id int64) bool {
	item, err := w.store.Upload(ctx, id)
	return err == nil && item.Status == store.StatusPending
}

// ValidateFolder rejects system directories and anything that is not an
// existing directory.
func ValidateFolder(path string) error {
	systemDirs := []string{"/etc", "/System", "/Windows", "/sys", "/proc", "C:\\Windows", "C:\\System"}
	for _, sysDir := range systemDirs {
		if path == sysDir || strings.HasPrefix(path, sysDir+string(filepath.Separator)) {
			return apperr.Config("cannot watch system directory: %s", path)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return apperr.Config("path does not exist: %s", path)
	}
	if !info.IsDir() {
		return apperr.Config("path is not a directory: %s", path)
	}
	return nil
}

// AddFolder records a folder and starts watching it immediately
func (w *Watcher) AddFolder(ctx context.Context, path string) (int64, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return 0, apperr.Config("invalid path: %v", err)
	}
	logger := w.logger.WithContext("folder_path", path)

	if err := ValidateFolder(path); err != nil {
		logger.WithContext("error", err.Error()).Warn("invalid folder path")
		return 0, err
	}

	id, err := w.store.AddWatchedFolder(ctx, path)
	if err != nil {
		logger.WithContext("error", err.Error()).Error("failed to save watched folder")
		return 0, err
	}

	if err := w.watchTree(path); err != nil {
		logger.WithContext("error", err.Error()).Error("failed to add folder to watcher")
		return id, apperr.Device("failed to add folder to watcher", err)
	}

	logger.Info("watched folder added")
	return id, nil
}

// RemoveFolder forgets a folder and stops watching its tree.
func (w *Watcher) RemoveFolder(ctx context.Context, id int64) error {
	path, err := w.store.RemoveWatchedFolder(ctx, id)
	if err != nil {
		return err
	}
	w.unwatchTree(path)
	w.logger.WithContext("folder_path", path).Info("watched folder removed")
	return nil
}

// Watching reports whether root is currently watched.
func (w *Watcher) Watching(root string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roots[filepath.Clean(root)]
}
