// Package mouse maps auxiliary mouse buttons to assistant actions.
package mouse

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/events"
	"github.com/BGMLAI/exoskull/internal/logging"
)

// Buttons holds the configured button codes.
type Buttons struct {
	Dictation int `json:"button_dictation"`
	TTS       int `json:"button_tts"`
	Chat      int `json:"button_chat"`
}

// DefaultButtons are the codes seeded into settings.
var DefaultButtons = Buttons{Dictation: 4, TTS: 5, Chat: 3}

// Hook delivers raw button presses until ctx is cancelled.
type Hook interface {
	Listen(ctx context.Context, presses chan<- int) error
}

// Recorder is the dictation state the dispatcher toggles against.
type Recorder interface {
	IsRecording() bool
}

// Handler performs an action after it has been emitted.
type Handler func(ctx context.Context, action string)

// Dispatcher turns presses into mouse-event emissions.
type Dispatcher struct {
	emitter  events.Emitter
	recorder Recorder
	handler  Handler
	logger   *logging.Logger

	running atomic.Bool

	mu      sync.RWMutex
	buttons Buttons
}

func NewDispatcher(buttons Buttons, recorder Recorder, emitter events.Emitter, handler Handler, logger *logging.Logger) *Dispatcher {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Dispatcher{emitter: emitter, recorder: recorder, handler: handler, logger: logger, buttons: buttons}
}

// Configure swaps the button codes; a running hook picks them up at the
// next press.
func (d *Dispatcher) Configure(b Buttons) {
	d.mu.Lock()
	d.buttons = b
	d.mu.Unlock()
}

func (d *Dispatcher) Buttons() Buttons {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buttons
}

// Running reports whether a hook is attached.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

// Press handles one button press and returns the emitted action, or "" for
// an unmapped button.
func (d *Dispatcher) Press(ctx context.Context, button int) string {
	action := d.action(button)
	if action == "" {
		return ""
	}
	d.logger.WithFields(map[string]interface{}{"button": button, "action": action}).Debug("mouse action")
	d.emitter.Emit(events.MouseEvent, events.MousePayload{Action: action, Button: button})
	if d.handler != nil {
		d.handler(ctx, action)
	}
	return action
}

func (d *Dispatcher) action(button int) string {
	b := d.Buttons()
	switch button {
	case b.Dictation:
		if d.recorder != nil && d.recorder.IsRecording() {
			return events.ActionDictationStop
		}
		return events.ActionDictationStart
	case b.TTS:
		return events.ActionTTS
	case b.Chat:
		return events.ActionChat
	}
	return ""
}

// Run attaches hook and dispatches presses until ctx is cancelled. Only one
// hook may run at a time.
func (d *Dispatcher) Run(ctx context.Context, hook Hook) error {
	if !d.running.CompareAndSwap(false, true) {
		return apperr.Config("mouse hook already running")
	}
	defer d.running.Store(false)

	presses := make(chan int, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- hook.Listen(ctx, presses)
		close(presses)
	}()

	for button := range presses {
		d.Press(ctx, button)
	}
	err := <-errc
	if ctx.Err() != nil {
		return nil
	}
	return err
}
