package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

const uploadPath = "/api/knowledge/upload"

// UploadFile ships a watched file to the knowledge store.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) error {
	req, err := multipartBody(filePart{field: "file", filename: name, contentType: "application/octet-stream", data: data}, nil)
	if err != nil {
		return err
	}
	req.method, req.path = http.MethodPost, uploadPath
	_, err = c.do(ctx, req)
	return err
}

// UploadRecall ships one capture image with its metadata JSON.
func (c *Client) UploadRecall(ctx context.Context, png []byte, timestamp, metadata string) error {
	name := "recall_" + recallStamp(timestamp) + ".png"
	req, err := multipartBody(
		filePart{field: "file", filename: name, contentType: "image/png", data: png},
		[][2]string{{"type", "recall"}, {"metadata", metadata}},
	)
	if err != nil {
		return err
	}
	req.method, req.path = http.MethodPost, uploadPath
	_, err = c.do(ctx, req)
	return err
}

// recallStamp turns an RFC 3339 timestamp into a filename-safe form.
func recallStamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Now().UTC().Format("20060102T150405Z")
	}
	return t.UTC().Format("20060102T150405Z")
}

// Transcribe sends a WAV buffer and returns the recognised text.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	req, err := multipartBody(filePart{field: "audio", filename: "recording.wav", contentType: "audio/wav", data: wav}, nil)
	if err != nil {
		return "", err
	}
	req.method, req.path = http.MethodPost, "/api/voice/transcribe"
	body, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := decode(body, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// TTS returns synthesized audio for text.
func (c *Client) TTS(ctx context.Context, text string) ([]byte, error) {
	req, err := jsonRequest(http.MethodPost, "/api/voice/tts", map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req)
}

// ChatReply is the body of /api/chat/send.
type ChatReply struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// ChatSend posts one message and waits for the whole reply.
func (c *Client) ChatSend(ctx context.Context, message string) (*ChatReply, error) {
	req, err := jsonRequest(http.MethodPost, "/api/chat/send", map[string]string{"message": message})
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var out ChatReply
	if err := decode(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Goals lists the user's goals. The payload is passed through untouched.
func (c *Client) Goals(ctx context.Context) (json.RawMessage, error) {
	return c.getJSON(ctx, "/api/goals")
}

// CreateGoal adds a goal; description is omitted when empty.
func (c *Client) CreateGoal(ctx context.Context, title, description string) (json.RawMessage, error) {
	payload := struct {
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
	}{title, description}
	req, err := jsonRequest(http.MethodPost, "/api/goals", payload)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return rawJSON(body)
}

// Tasks returns the canvas task list.
func (c *Client) Tasks(ctx context.Context) (json.RawMessage, error) {
	return c.getJSON(ctx, "/api/canvas/data/tasks")
}

// SearchKnowledge queries the remote knowledge store.
func (c *Client) SearchKnowledge(ctx context.Context, query string) (json.RawMessage, error) {
	return c.getJSON(ctx, "/api/knowledge/search?q="+url.QueryEscape(query))
}

func (c *Client) getJSON(ctx context.Context, path string) (json.RawMessage, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	return rawJSON(body)
}

func rawJSON(body []byte) (json.RawMessage, error) {
	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, decode(body, new(interface{}))
	}
	return json.RawMessage(body), nil
}
