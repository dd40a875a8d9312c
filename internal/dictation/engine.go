// Package dictation records push-to-talk audio from the default input
// device into a single mono WAV buffer.
package dictation

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/logging"
)

const (
	DefaultSampleRate = 16000
	DefaultGrace      = 200 * time.Millisecond
)

// Stream is an open capture stream. It must be started and closed on the
// thread that opened it.
type Stream interface {
	Start() error
	Close()
}

// Device opens capture streams delivering mono float samples at rate.
type Device interface {
	Open(rate int, onSamples func([]float32)) (Stream, error)
}

// Engine owns the single dictation session.
type Engine struct {
	device Device
	rate   int
	grace  time.Duration
	logger *logging.Logger

	recording atomic.Bool

	// session guards stop and start against each other
	session sync.Mutex
	stop    chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	samples []float32
}

func NewEngine(device Device, rate int, grace time.Duration, logger *logging.Logger) *Engine {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if grace < 0 {
		grace = DefaultGrace
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{device: device, rate: rate, grace: grace, logger: logger}
}

// IsRecording reports whether a session is armed.
func (e *Engine) IsRecording() bool {
	return e.recording.Load()
}

// Start clears the buffer and begins capturing. The stream lives on its own
// locked OS thread until Stop.
func (e *Engine) Start() error {
	e.session.Lock()
	defer e.session.Unlock()

	if e.recording.Load() || e.stop != nil {
		return apperr.AlreadyRecording()
	}

	e.mu.Lock()
	e.samples = e.samples[:0]
	e.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	started := make(chan error, 1)
	e.recording.Store(true)

	go e.capture(stop, done, started)

	if err := <-started; err != nil {
		e.recording.Store(false)
		<-done
		return apperr.Device("failed to open audio input", err)
	}
	e.stop, e.done = stop, done
	e.logger.Debug("dictation started at %d Hz", e.rate)
	return nil
}

func (e *Engine) capture(stop <-chan struct{}, done chan<- struct{}, started chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	stream, err := e.device.Open(e.rate, e.append)
	if err != nil {
		started <- err
		return
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		started <- err
		return
	}
	started <- nil
	<-stop
}

// append runs on the device callback.
func (e *Engine) append(samples []float32) {
	if !e.recording.Load() {
		return
	}
	e.mu.Lock()
	e.samples = append(e.samples, samples...)
	e.mu.Unlock()
}

// Stop halts capture, waits the grace period and returns the WAV. An empty
// buffer is NoAudio.
func (e *Engine) Stop() ([]byte, error) {
	e.session.Lock()
	defer e.session.Unlock()

	e.recording.Store(false)
	if e.stop != nil {
		time.Sleep(e.grace)
		close(e.stop)
		<-e.done
		e.stop, e.done = nil, nil
	}

	e.mu.Lock()
	samples := e.samples
	e.samples = nil
	e.mu.Unlock()

	if len(samples) == 0 {
		return nil, apperr.NoAudio()
	}
	e.logger.Debug("dictation stopped with %d samples", len(samples))
	return EncodeWAV(samples, e.rate), nil
}
