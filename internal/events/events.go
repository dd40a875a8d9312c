// Package events names the notifications the agent pushes to the UI.
package events

import "sync"

// Event names
const (
	UploadQueued   = "upload-queued"
	UploadComplete = "upload-complete"
	UploadFailed   = "upload-failed"
	MouseEvent     = "mouse-event"
	Transcript     = "dictation-transcript"
)

// Mouse actions
const (
	ActionDictationStart = "dictation_start"
	ActionDictationStop  = "dictation_stop"
	ActionTTS            = "tts"
	ActionChat           = "chat"
)

type UploadQueuedPayload struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
}

type UploadCompletePayload struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
}

type UploadFailedPayload struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

type MousePayload struct {
	Action string `json:"action"`
	Button int    `json:"button"`
}

type TranscriptPayload struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Emitter delivers a named event with a JSON-encodable payload. Emit must
// not block the caller for long.
type Emitter interface {
	Emit(name string, payload interface{})
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(string, interface{}) {}

// Event is one recorded emission.
type Event struct {
	Name    string
	Payload interface{}
}

// Recorder keeps every emission in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(name string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: name, Payload: payload})
}

// Events returns a copy of what has been emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns the emissions with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
