package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type identityServer struct {
	*httptest.Server
	refreshes atomic.Int32
	logins    atomic.Int32
	// next access token handed out by a refresh
	mu     sync.Mutex
	issued string
	status int
}

func newIdentityServer(t *testing.T) *identityServer {
	t.Helper()
	idp := &identityServer{status: http.StatusOK}
	idp.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		idp.mu.Lock()
		status, issued := idp.status, idp.issued
		idp.mu.Unlock()

		switch r.URL.Query().Get("grant_type") {
		case "password":
			idp.logins.Add(1)
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case "refresh_token":
			idp.refreshes.Add(1)
			time.Sleep(20 * time.Millisecond)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  issued,
			"refresh_token": "refresh-2",
			"user":          map[string]string{"id": "tenant-1", "email": "a@b.c"},
		})
	}))
	t.Cleanup(idp.Close)
	return idp
}

func (i *identityServer) issue(token string, status int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.issued, i.status = token, status
}

func newTestManager(t *testing.T, idp *identityServer) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Initialize(context.Background(), filepath.Join(t.TempDir(), "exoskull.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewManager(st, idp.URL, "anon", nil, nil), st
}

func TestExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, Expired(signedToken(t, now.Add(time.Hour)), now))
	assert.True(t, Expired(signedToken(t, now.Add(30*time.Second)), now))
	assert.True(t, Expired(signedToken(t, now.Add(-time.Minute)), now))
	assert.True(t, Expired("not-a-jwt", now))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.True(t, Expired(noExp, now))
}

func TestLoginLogoutRoundTrip(t *testing.T) {
	idp := newIdentityServer(t)
	m, st := newTestManager(t, idp)
	ctx := context.Background()
	fresh := signedToken(t, time.Now().Add(time.Hour))
	idp.issue(fresh, http.StatusOK)

	assert.False(t, m.Status(ctx).Authenticated)

	sess, err := m.Login(ctx, "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", sess.TenantID)

	status := m.Status(ctx)
	assert.True(t, status.Authenticated)
	assert.Equal(t, "a@b.c", status.Email)
	assert.Equal(t, "tenant-1", status.Tenant)

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, stored.Token)
	assert.Equal(t, "refresh-2", stored.RefreshToken)

	tok, err := m.ValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, tok)
	assert.Zero(t, idp.refreshes.Load())

	require.NoError(t, m.Logout(ctx))
	assert.False(t, m.Status(ctx).Authenticated)
	_, err = m.ValidToken(ctx)
	assert.True(t, apperr.Is(err, apperr.KindAuthExpired))
}

func TestLoginRejected(t *testing.T) {
	idp := newIdentityServer(t)
	m, _ := newTestManager(t, idp)

	_, err := m.Login(context.Background(), "a@b.c", "wrong")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPermanentRemote))
	assert.Contains(t, err.Error(), "Login failed (400)")
	assert.False(t, m.Status(context.Background()).Authenticated)
}

func TestValidTokenRefreshesNearExpiry(t *testing.T) {
	idp := newIdentityServer(t)
	m, st := newTestManager(t, idp)
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, store.Session{
		Token:        signedToken(t, time.Now().Add(30*time.Second)),
		RefreshToken: "refresh-1",
		TenantID:     "tenant-1",
		UserEmail:    "a@b.c",
	}))
	fresh := signedToken(t, time.Now().Add(time.Hour))
	idp.issue(fresh, http.StatusOK)

	tok, err := m.ValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, tok)
	assert.EqualValues(t, 1, idp.refreshes.Load())

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, stored.Token)
	assert.Equal(t, "refresh-2", stored.RefreshToken)
}

func TestRefreshFailureIsAuthExpired(t *testing.T) {
	idp := newIdentityServer(t)
	m, st := newTestManager(t, idp)
	ctx := context.Background()

	stale := signedToken(t, time.Now().Add(-time.Minute))
	require.NoError(t, st.SaveSession(ctx, store.Session{Token: stale, RefreshToken: "refresh-1"}))
	idp.issue("", http.StatusUnauthorized)

	_, err := m.ValidToken(ctx)
	assert.True(t, apperr.Is(err, apperr.KindAuthExpired))

	stored, err := st.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, stale, stored.Token)
}

func TestRefreshReturningExpiredTokenIsAuthExpired(t *testing.T) {
	idp := newIdentityServer(t)
	m, st := newTestManager(t, idp)
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, store.Session{
		Token:        signedToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "refresh-1",
	}))
	idp.issue(signedToken(t, time.Now().Add(10*time.Second)), http.StatusOK)

	_, err := m.ValidToken(ctx)
	assert.True(t, apperr.Is(err, apperr.KindAuthExpired))
}

func TestConcurrentRefreshHappensOnce(t *testing.T) {
	idp := newIdentityServer(t)
	m, st := newTestManager(t, idp)
	ctx := context.Background()

	rejected := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, st.SaveSession(ctx, store.Session{Token: rejected, RefreshToken: "refresh-1"}))
	fresh := signedToken(t, time.Now().Add(2*time.Hour))
	idp.issue(fresh, http.StatusOK)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.Refresh(ctx, rejected)
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, idp.refreshes.Load())
	for _, tok := range results {
		assert.Equal(t, fresh, tok)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	idp := newIdentityServer(t)
	m, st := newTestManager(t, idp)
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, store.Session{Token: "garbage"}))
	_, err := m.ValidToken(ctx)
	assert.True(t, apperr.Is(err, apperr.KindAuthExpired))
	assert.Zero(t, idp.refreshes.Load())
}
