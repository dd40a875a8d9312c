// Package agent supervises the background loops and implements the
// commands the UI and CLI invoke.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/BGMLAI/exoskull/internal/auth"
	"github.com/BGMLAI/exoskull/internal/config"
	"github.com/BGMLAI/exoskull/internal/dictation"
	"github.com/BGMLAI/exoskull/internal/events"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/BGMLAI/exoskull/internal/mouse"
	"github.com/BGMLAI/exoskull/internal/recall"
	"github.com/BGMLAI/exoskull/internal/remote"
	"github.com/BGMLAI/exoskull/internal/speech"
	"github.com/BGMLAI/exoskull/internal/store"
	"github.com/BGMLAI/exoskull/internal/uploader"
	"github.com/BGMLAI/exoskull/internal/watcher"
)

// Task names in the supervisor registry
const (
	TaskRecall   = "recall"
	TaskSync     = "recall-sync"
	TaskUploader = "uploader"
	TaskWatcher  = "watcher"
	TaskMouse    = "mouse"
)

// Deps are the collaborators main wires together. Capture, Dictation,
// Watcher and MouseHook may be nil on machines without the capability.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Auth      *auth.Manager
	Remote    *remote.Client
	Capture   recall.Source
	OCR       recall.OCR
	Dictation *dictation.Engine
	Speech    *speech.Engine
	Watcher   *watcher.Watcher
	MouseHook mouse.Hook
	Emitter   events.Emitter
	Crash     *logging.CrashReporter
	Logger    *logging.Logger
}

// Agent owns the stop-token registry. Each background loop runs under its
// own cancellable context; stopping one never touches another.
type Agent struct {
	cfg       *config.Config
	store     *store.Store
	auth      *auth.Manager
	remote    *remote.Client
	capture   recall.Source
	ocr       recall.OCR
	dictation *dictation.Engine
	speech    *speech.Engine
	watcher   *watcher.Watcher
	hook      mouse.Hook
	mouse     *mouse.Dispatcher
	emitter   events.Emitter
	crash     *logging.CrashReporter
	logger    *logging.Logger

	uploader *uploader.Worker
	syncer   *recall.Syncer

	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
	root  context.Context
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func New(d Deps) *Agent {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Emitter == nil {
		d.Emitter = events.Nop{}
	}
	if d.Crash == nil {
		d.Crash = logging.NewCrashReporter(d.Config.CrashPath(), d.Logger)
	}

	a := &Agent{
		cfg:       d.Config,
		store:     d.Store,
		auth:      d.Auth,
		remote:    d.Remote,
		capture:   d.Capture,
		ocr:       d.OCR,
		dictation: d.Dictation,
		speech:    d.Speech,
		watcher:   d.Watcher,
		hook:      d.MouseHook,
		emitter:   d.Emitter,
		crash:     d.Crash,
		logger:    d.Logger,
		tasks:     make(map[string]*task),
		root:      context.Background(),
	}

	a.uploader = uploader.NewWorker(d.Store, d.Remote, d.Emitter, uploader.Options{
		Interval:   d.Config.Uploader.Interval.Duration,
		BatchSize:  d.Config.Uploader.BatchSize,
		MaxRetries: d.Config.Uploader.MaxRetries,
	}, d.Logger.Named("uploader"))
	a.syncer = recall.NewSyncer(d.Store, d.Remote, d.Config.Recall.SyncInterval.Duration,
		d.Config.Recall.SyncBatchSize, d.Logger.Named("recall-sync"))
	a.mouse = mouse.NewDispatcher(a.loadButtons(context.Background()), a.dictationState(), d.Emitter,
		a.handleMouseAction, d.Logger.Named("mouse"))
	return a
}

// spawn runs fn in its own goroutine under a registered stop token. It
// returns false when a task with that name is already running.
func (a *Agent) spawn(name string, fn func(ctx context.Context) error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tasks[name]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(a.root)
	t := &task{cancel: cancel, done: make(chan struct{})}
	a.tasks[name] = t
	a.wg.Add(1)

	go func() {
		defer a.wg.Done()
		defer close(t.done)
		defer a.forget(name, t)
		defer a.crash.Guard(name)

		if err := fn(ctx); err != nil {
			a.logger.WithContext("task", name).Error("task ended: %v", err)
		}
	}()
	return true
}

// forget drops the registry entry of a task that ended on its own.
func (a *Agent) forget(name string, t *task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tasks[name] == t {
		t.cancel()
		delete(a.tasks, name)
	}
}

// cancel trips a task's stop token and returns without waiting for it.
// The returned channel closes when the task has returned; it is nil when
// no such task was running.
func (a *Agent) cancel(name string) <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[name]
	if !ok {
		return nil
	}
	t.cancel()
	delete(a.tasks, name)
	return t.done
}

// Running reports whether the named task is registered.
func (a *Agent) Running(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.tasks[name]
	return ok
}

// Start launches the upload worker, recall sync, folder watcher and mouse
// hook, and resumes the capture loop when recall was left enabled.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	a.root = ctx
	a.mu.Unlock()

	a.spawn(TaskUploader, a.uploader.Run)
	a.spawn(TaskSync, a.syncer.Run)
	if a.watcher != nil {
		a.spawn(TaskWatcher, a.watcher.Run)
	}
	if a.hook != nil {
		a.spawn(TaskMouse, func(ctx context.Context) error { return a.mouse.Run(ctx, a.hook) })
	}

	if a.store.SettingBool(ctx, store.KeyRecallEnabled, false) {
		if err := a.launchRecall(ctx); err != nil {
			a.logger.Warn("recall not resumed: %v", err)
		}
	}
	a.logger.Info("agent started")
}

// Shutdown cancels every task and waits up to timeout for them to return.
func (a *Agent) Shutdown(timeout time.Duration) {
	a.mu.Lock()
	for name, t := range a.tasks {
		t.cancel()
		delete(a.tasks, name)
	}
	a.mu.Unlock()

	if a.speech != nil {
		a.speech.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		a.logger.Warn("shutdown timed out after %s", timeout)
	}
}

// Mouse exposes the dispatcher so forwarded presses reach it.
func (a *Agent) Mouse() *mouse.Dispatcher {
	return a.mouse
}
