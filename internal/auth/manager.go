// Package auth keeps the session used by every outbound call: it logs in
// against the identity provider, checks access-token expiry locally and
// refreshes on demand.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/logging"
	"github.com/BGMLAI/exoskull/internal/store"
)

// Store defines the persistence the manager needs
type Store interface {
	LoadSession(ctx context.Context) (*store.Session, error)
	SaveSession(ctx context.Context, sess store.Session) error
	DeleteSession(ctx context.Context) error
}

// Status is the pure-read view of the session.
type Status struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Tenant        string `json:"tenant,omitempty"`
}

// Manager owns the singleton session. Refreshes are serialized so concurrent
// callers holding the same stale token cause a single refresh call.
type Manager struct {
	store   Store
	idpURL  string
	anonKey string
	client  *http.Client
	logger  *logging.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewManager creates a manager talking to the identity provider at idpURL.
func NewManager(st Store, idpURL, anonKey string, client *http.Client, logger *logging.Logger) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		store:   st,
		idpURL:  strings.TrimRight(idpURL, "/"),
		anonKey: anonKey,
		client:  client,
		logger:  logger,
		now:     time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Login exchanges credentials for a session and persists it, replacing any
// previous session.
func (m *Manager) Login(ctx context.Context, email, password string) (*store.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Config("email and password are required")
	}

	resp, err := m.tokenRequest(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	sess := store.Session{
		Token:        resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TenantID:     resp.User.ID,
		UserEmail:    email,
	}
	if resp.User.Email != "" {
		sess.UserEmail = resp.User.Email
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	m.logger.WithContext("email", sess.UserEmail).Info("logged in")
	return &sess, nil
}

// Logout forgets the session.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.DeleteSession(ctx); err != nil {
		return err
	}
	m.logger.Info("logged out")
	return nil
}

// Status never fails; a store error reads as logged out.
func (m *Manager) Status(ctx context.Context) Status {
	sess, err := m.store.LoadSession(ctx)
	if err != nil || sess == nil {
		return Status{}
	}
	return Status{Authenticated: true, Email: sess.UserEmail, Tenant: sess.TenantID}
}

// ValidToken returns an access token with at least a minute of validity
// left, refreshing it first when needed. Every failure is AuthExpired.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.LoadSession(ctx)
	if err != nil {
		return "", apperr.AuthExpired(err)
	}
	if sess == nil {
		return "", apperr.AuthExpired(nil)
	}
	if !Expired(sess.Token, m.now()) {
		return sess.Token, nil
	}
	return m.refreshLocked(ctx, sess)
}

// Refresh forces a refresh after the remote rejected token. When another
// caller already replaced that token the stored one is returned instead.
func (m *Manager) Refresh(ctx context.Context, rejected string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.LoadSession(ctx)
	if err != nil {
		return "", apperr.AuthExpired(err)
	}
	if sess == nil {
		return "", apperr.AuthExpired(nil)
	}
	if sess.Token != rejected && !Expired(sess.Token, m.now()) {
		return sess.Token, nil
	}
	return m.refreshLocked(ctx, sess)
}

func (m *Manager) refreshLocked(ctx context.Context, sess *store.Session) (string, error) {
	if sess.RefreshToken == "" {
		return "", apperr.AuthExpired(fmt.Errorf("no refresh token"))
	}

	resp, err := m.tokenRequest(ctx, "refresh_token", map[string]string{"refresh_token": sess.RefreshToken})
	if err != nil {
		m.logger.Warn("token refresh failed: %v", err)
		return "", apperr.AuthExpired(err)
	}
	if Expired(resp.AccessToken, m.now()) {
		return "", apperr.AuthExpired(fmt.Errorf("refreshed token already expired"))
	}

	next := *sess
	next.Token = resp.AccessToken
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}
	if resp.User.ID != "" {
		next.TenantID = resp.User.ID
	}
	if err := m.store.SaveSession(ctx, next); err != nil {
		return "", apperr.AuthExpired(err)
	}
	m.logger.Debug("access token refreshed")
	return next.Token, nil
}

// tokenRequest POSTs to {idp}/auth/v1/token?grant_type=<grant>.
func (m *Manager) tokenRequest(ctx context.Context, grant string, body map[string]string) (*tokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/auth/v1/token?grant_type=%s", m.idpURL, grant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.anonKey != "" {
		req.Header.Set("apikey", m.anonKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperr.Transient("Network error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := fmt.Sprintf("Login failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return nil, apperr.Transient(text, nil)
		}
		return nil, apperr.PermanentRemote(text)
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Transient("Parse error", err)
	}
	if out.AccessToken == "" {
		return nil, apperr.PermanentRemote("identity provider returned no access token")
	}
	return &out, nil
}
