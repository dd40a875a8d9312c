// Package remote is the HTTP client for the exoskull service. Every call
// fetches a bearer from the token source and retries once after a 401.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/google/uuid"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 30 * time.Second

// TokenSource supplies bearer tokens.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context, rejected string) (string, error)
}

// Client talks to {base}/api/...
type Client struct {
	baseURL  string
	tokens   TokenSource
	deviceID string
	client   *http.Client
	logger   *logging.Logger
}

// NewClient creates a client for baseURL. deviceID may be empty.
func NewClient(baseURL string, tokens TokenSource, deviceID string, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokens:   tokens,
		deviceID: deviceID,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// request describes one call. body is replayed on the retry so it is held
// as bytes.
type request struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func jsonRequest(method, path string, v interface{}) (request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return request{}, fmt.Errorf("remote: failed to marshal %s body: %w", path, err)
	}
	return request{method: method, path: path, contentType: "application/json", body: body}, nil
}

// do sends req with a valid bearer and returns the response body of a 2xx
// reply.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	token, err := c.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Debug("%s %s rejected bearer, refreshing", req.method, req.path)
		token, err = c.tokens.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		status, body, err = c.send(ctx, req, token)
		if err != nil {
			return nil, err
		}
	}
	if err := classify(status, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, r request, token string) (int, []byte, error) {
	var reader io.Reader
	if r.body != nil {
		reader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("remote: failed to create request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.deviceID != "" {
		req.Header.Set("X-Exoskull-Device", c.deviceID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, nil, err
		}
		return 0, nil, apperr.Transient("Network error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, apperr.Transient("Read error", err)
	}
	return resp.StatusCode, body, nil
}

// classify maps a status code onto the error taxonomy.
func classify(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return apperr.AuthExpired(fmt.Errorf("server returned 401"))
	case status >= 500:
		return apperr.Transient(statusMessage(status, body), nil)
	default:
		return apperr.PermanentRemote(statusMessage(status, body))
	}
}

func statusMessage(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	if text == "" {
		return fmt.Sprintf("Server error (%d)", status)
	}
	return fmt.Sprintf("Server error (%d): %s", status, text)
}

func decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Transient("Parse error", err)
	}
	return nil
}
