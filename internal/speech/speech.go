// Package speech reads text aloud through the system synthesizer or the
// remote TTS endpoint.
package speech

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/logging"
)

// Providers
const (
	ProviderSystem = "system"
	ProviderCloud  = "cloud"
)

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	TTS(ctx context.Context, text string) ([]byte, error)
}

// command is one external program invocation with optional stdin.
type command struct {
	name  string
	args  []string
	stdin []byte
}

type runFunc func(ctx context.Context, c command) error

func runCommand(ctx context.Context, c command) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	if c.stdin != nil {
		cmd.Stdin = bytes.NewReader(c.stdin)
	}
	return cmd.Run()
}

// Engine speaks one utterance at a time. A new Speak interrupts the
// current one.
type Engine struct {
	cloud  Synthesizer
	run    runFunc
	goos   string
	logger *logging.Logger

	speaking atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

func NewEngine(cloud Synthesizer, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{cloud: cloud, run: runCommand, goos: runtime.GOOS, logger: logger}
}

// IsSpeaking reports whether an utterance is playing.
func (e *Engine) IsSpeaking() bool {
	return e.speaking.Load()
}

// Speak blocks until text has been read or Stop is called. Interrupted
// speech is not an error.
func (e *Engine) Speak(ctx context.Context, provider, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.Config("nothing to speak")
	}

	ctx, seq := e.begin(ctx)
	defer e.end(seq)

	var err error
	switch provider {
	case ProviderCloud:
		err = e.speakCloud(ctx, text)
	case ProviderSystem, "":
		err = e.run(ctx, e.systemCommand(text))
	default:
		return apperr.Config("unknown tts provider %q", provider)
	}

	if ctx.Err() != nil {
		return nil
	}
	var ee *exec.Error
	if errors.As(err, &ee) {
		return apperr.Device("no speech synthesizer available", err)
	}
	return err
}

func (e *Engine) speakCloud(ctx context.Context, text string) error {
	if e.cloud == nil {
		return apperr.Config("cloud tts is not configured")
	}
	audio, err := e.cloud.TTS(ctx, text)
	if err != nil {
		return err
	}
	return e.run(ctx, e.playerCommand(audio))
}

// Stop interrupts the current utterance, if any.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.speaking.Store(false)
}

func (e *Engine) begin(parent context.Context) (context.Context, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.seq++
	e.speaking.Store(true)
	return ctx, e.seq
}

func (e *Engine) end(seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq != seq {
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.speaking.Store(false)
}

func (e *Engine) systemCommand(text string) command {
	switch e.goos {
	case "darwin":
		return command{name: "say", args: []string{text}}
	case "windows":
		script := "Add-Type -AssemblyName System.Speech; " +
			"(New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak([Console]::In.ReadToEnd())"
		return command{name: "powershell", args: []string{"-NoProfile", "-Command", script}, stdin: []byte(text)}
	default:
		return command{name: "espeak", args: []string{"--stdin"}, stdin: []byte(text)}
	}
}

// playerCommand plays an audio file from stdin.
func (e *Engine) playerCommand(audio []byte) command {
	switch e.goos {
	case "darwin":
		return command{name: "afplay", args: []string{"-"}, stdin: audio}
	default:
		return command{name: "ffplay", args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"}, stdin: audio}
	}
}
