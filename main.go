package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"github.com/BGMLAI/exoskull/internal/agent"
	"github.com/BGMLAI/exoskull/internal/api"
	"github.com/BGMLAI/exoskull/internal/auth"
	"github.com/BGMLAI/exoskull/internal/capture"
	"github.com/BGMLAI/exoskull/internal/capture/screen"
	"github.com/BGMLAI/exoskull/internal/cli"
	"github.com/BGMLAI/exoskull/internal/config"
	"github.com/BGMLAI/exoskull/internal/dictation"
	"github.com/BGMLAI/exoskull/internal/dictation/miniaudio"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/BGMLAI/exoskull/internal/mouse"
	"github.com/BGMLAI/exoskull/internal/recall"
	"github.com/BGMLAI/exoskull/internal/remote"
	"github.com/BGMLAI/exoskull/internal/speech"
	"github.com/BGMLAI/exoskull/internal/store"
	"github.com/BGMLAI/exoskull/internal/watcher"
)

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return true
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

func main() {
	// Help and version need no store
	if isHelpOrVersion(os.Args) {
		if err := cli.NewApp(&cli.Runtime{}).Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := os.Getenv("EXOSKULL_CONFIG")
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	crash := logging.NewCrashReporter(cfg.CrashPath(), logger.Named("crash"))
	defer crash.GuardMain()

	rt, closeRuntime, err := newRuntime(context.Background(), cfg, logger, crash)
	if err != nil {
		logger.Error("Failed to initialize: %v", err)
		closeLog()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runErr := cli.NewApp(rt).Run(os.Args)
	closeRuntime()
	closeLog()
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", runErr)
		os.Exit(1)
	}
}

// setupLogging builds the root logger. With file logging enabled DEBUG and
// INFO go to the rotating log file only.
func setupLogging(cfg *config.Config, console io.Writer) (*logging.Logger, func(), error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if !cfg.Logging.DebugEnabled {
		return logging.NewLogger("main", level, console), func() {}, nil
	}

	fw, err := logging.NewFileWriter(cfg.LogPath(), cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := logging.NewLogger("main", level, logging.NewMultiWriter(console, fw))
	return logger, func() { fw.Close() }, nil
}

// newRuntime opens the store and wires every component. Devices are
// opened lazily, so one-shot commands never touch the screen or microphone.
func newRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger, crash *logging.CrashReporter) (*cli.Runtime, func(), error) {
	st, err := store.Initialize(ctx, cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	logger.Debug("Database initialized at %s", cfg.DBPath())

	authMgr := auth.NewManager(st, cfg.API.IdentityURL, cfg.API.AnonKey, nil, logger.Named("auth"))
	client := remote.NewClient(cfg.API.BaseURL, authMgr, st.SettingString(ctx, store.KeyDeviceID, ""),
		cfg.API.Timeout.Duration, logger.Named("remote"))

	hub := api.NewWebSocketHub(logger.Named("websocket"))

	w, err := watcher.NewWatcher(st, hub, watcher.Options{
		Ignore:  cfg.Uploader.Ignore,
		MaxSize: cfg.MaxFileSize(),
	}, logger.Named("watcher"))
	if err != nil {
		logger.Warn("Folder watcher unavailable: %v", err)
		w = nil
	}

	a := agent.New(agent.Deps{
		Config:    cfg,
		Store:     st,
		Auth:      authMgr,
		Remote:    client,
		Capture:   capture.NewSource(screen.Primary{}, capture.DefaultProbe()),
		OCR:       recall.NewOCR(cfg.Recall.OCR),
		Dictation: dictation.NewEngine(miniaudio.New(logger.Named("audio")), cfg.Dictation.SampleRate, cfg.Dictation.Grace.Duration, logger.Named("dictation")),
		Speech:    speech.NewEngine(client, logger.Named("speech")),
		Watcher:   w,
		MouseHook: mouseHook(),
		Emitter:   hub,
		Crash:     crash,
		Logger:    logger.Named("agent"),
	})

	rt := &cli.Runtime{
		Config: cfg,
		Agent:  a,
		Hub:    hub,
		Logger: logger,
		Crash:  crash,
	}
	closeFn := func() {
		if w != nil {
			w.Close()
		}
		st.Close()
	}
	return rt, closeFn, nil
}

// mouseHook returns the global button hook for this platform, or nil when
// presses can only arrive through the control API.
func mouseHook() mouse.Hook {
	if runtime.GOOS != "linux" {
		return nil
	}
	bin, err := exec.LookPath("xinput")
	if err != nil {
		return nil
	}
	return mouse.XInputHook{Binary: bin}
}
