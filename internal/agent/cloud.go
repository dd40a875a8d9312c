package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/auth"
	"github.com/BGMLAI/exoskull/internal/store"
)

func (a *Agent) Login(ctx context.Context, email, password string) (*store.Session, error) {
	return a.auth.Login(ctx, email, password)
}

func (a *Agent) Logout(ctx context.Context) error {
	return a.auth.Logout(ctx)
}

func (a *Agent) AuthStatus(ctx context.Context) auth.Status {
	return a.auth.Status(ctx)
}

func (a *Agent) Goals(ctx context.Context) (json.RawMessage, error) {
	return a.remote.Goals(ctx)
}

func (a *Agent) CreateGoal(ctx context.Context, title, description string) (json.RawMessage, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperr.Config("goal title is required")
	}
	return a.remote.CreateGoal(ctx, title, description)
}

func (a *Agent) Tasks(ctx context.Context) (json.RawMessage, error) {
	return a.remote.Tasks(ctx)
}

func (a *Agent) SearchKnowledge(ctx context.Context, query string) (json.RawMessage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Config("search query is required")
	}
	return a.remote.SearchKnowledge(ctx, query)
}

// Chat sends one message. A reply carrying an error field is returned as
// a remote error.
func (a *Agent) Chat(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", apperr.Config("message is required")
	}
	reply, err := a.remote.ChatSend(ctx, message)
	if err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", apperr.PermanentRemote(reply.Error)
	}
	return reply.Text, nil
}

// Status is the overall agent snapshot used by `status` and /api/status.
type Status struct {
	Auth      auth.Status        `json:"auth"`
	Recall    bool               `json:"recall_running"`
	Watcher   bool               `json:"watcher_running"`
	Dictation bool               `json:"dictation_recording"`
	Speaking  bool               `json:"tts_speaking"`
	MouseHook bool               `json:"mouse_hook_running"`
	Captures  store.CaptureStats `json:"captures"`
	Queue     map[string]int     `json:"queue"`
}

func (a *Agent) Status(ctx context.Context) (Status, error) {
	captures, err := a.store.CaptureStats(ctx)
	if err != nil {
		return Status{}, err
	}
	queue, err := a.store.UploadStats(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Auth:      a.auth.Status(ctx),
		Recall:    a.Running(TaskRecall),
		Watcher:   a.Running(TaskWatcher),
		Dictation: a.DictationRecording(),
		Speaking:  a.Speaking(),
		MouseHook: a.mouse.Running(),
		Captures:  captures,
		Queue:     queue,
	}, nil
}

