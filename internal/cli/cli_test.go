package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BGMLAI/exoskull/internal/agent"
	"github.com/BGMLAI/exoskull/internal/auth"
	"github.com/BGMLAI/exoskull/internal/config"
	"github.com/BGMLAI/exoskull/internal/remote"
	"github.com/BGMLAI/exoskull/internal/store"
)

type testCLI struct {
	rt    *Runtime
	store *store.Store
	out   *bytes.Buffer
}

// newTestCLI wires a runtime against a temp store and a fake identity
// provider that accepts password "secret".
func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Server.Enabled = false

	st, err := store.Initialize(ctx, cfg.DBPath())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "a.b.c",
			"refresh_token": "r",
			"user":          map[string]string{"id": "tenant-1", "email": body["email"]},
		})
	}))
	t.Cleanup(idp.Close)

	mgr := auth.NewManager(st, idp.URL, "anon", nil, nil)
	a := agent.New(agent.Deps{
		Config: cfg,
		Store:  st,
		Auth:   mgr,
		Remote: remote.NewClient("http://127.0.0.1:0", mgr, "", time.Second, nil),
	})
	t.Cleanup(func() { a.Shutdown(time.Second) })

	rt := &Runtime{
		Config:       cfg,
		Agent:        a,
		Stdin:        strings.NewReader(""),
		ReadPassword: func() (string, error) { return "secret", nil },
	}
	return &testCLI{rt: rt, store: st, out: &bytes.Buffer{}}
}

func (tc *testCLI) run(args ...string) error {
	tc.out.Reset()
	app := NewApp(tc.rt)
	app.Writer = tc.out
	app.ErrWriter = tc.out
	return app.Run(append([]string{"exoskull"}, args...))
}

func decodeOutput[T any](t *testing.T, tc *testCLI) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(tc.out.Bytes(), &v), tc.out.String())
	return v
}

func TestLoginPromptsForEmail(t *testing.T) {
	tc := newTestCLI(t)
	tc.rt.Stdin = strings.NewReader("me@example.com\n")

	require.NoError(t, tc.run("login"))
	assert.Contains(t, tc.out.String(), "Logged in as me@example.com")

	sess, err := tc.store.LoadSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "tenant-1", sess.TenantID)
}

func TestLoginRejected(t *testing.T) {
	tc := newTestCLI(t)
	tc.rt.ReadPassword = func() (string, error) { return "wrong", nil }

	err := tc.run("login", "--email", "me@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERMANENT_REMOTE")
	assert.Contains(t, err.Error(), "Login failed (400)")
}

func TestLogout(t *testing.T) {
	tc := newTestCLI(t)
	require.NoError(t, tc.run("login", "-e", "me@example.com"))

	require.NoError(t, tc.run("logout"))
	sess, err := tc.store.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStatus(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run("status"))
	assert.Contains(t, tc.out.String(), "not logged in")
	assert.Contains(t, tc.out.String(), "disabled")

	require.NoError(t, tc.run("status", "--json"))
	status := decodeOutput[agent.Status](t, tc)
	assert.False(t, status.Auth.Authenticated)
	assert.Equal(t, 0, status.Captures.Total)
}

func TestRecallToggleWithoutRunningAgent(t *testing.T) {
	tc := newTestCLI(t)
	ctx := context.Background()

	require.NoError(t, tc.run("recall", "start"))
	assert.Contains(t, tc.out.String(), "Recall enabled")
	assert.True(t, tc.store.SettingBool(ctx, store.KeyRecallEnabled, false))

	require.NoError(t, tc.run("recall", "stop"))
	assert.False(t, tc.store.SettingBool(ctx, store.KeyRecallEnabled, true))
}

func TestRecallToggleForwardsToRunningAgent(t *testing.T) {
	tc := newTestCLI(t)

	var mu sync.Mutex
	var hits []string
	agentAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/api/recall/stop" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"screen capture is not available"}`))
			return
		}
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer agentAPI.Close()

	host, port, err := net.SplitHostPort(strings.TrimPrefix(agentAPI.URL, "http://"))
	require.NoError(t, err)
	tc.rt.Config.Server.Enabled = true
	tc.rt.Config.Server.BindAddress = host
	tc.rt.Config.Server.Port, _ = strconv.Atoi(port)

	require.NoError(t, tc.run("recall", "start"))
	assert.Contains(t, tc.out.String(), "Recall started")

	err = tc.run("recall", "stop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "screen capture is not available")

	mu.Lock()
	assert.Equal(t, []string{"POST /api/recall/start", "POST /api/recall/stop"}, hits)
	mu.Unlock()
	assert.False(t, tc.store.SettingBool(context.Background(), store.KeyRecallEnabled, false))
}

func TestRecallQueries(t *testing.T) {
	tc := newTestCLI(t)
	ctx := context.Background()
	_, err := tc.store.InsertCapture(ctx, store.NewCapture{
		Timestamp:   "2026-03-01T10:00:00Z",
		AppName:     "Editor",
		WindowTitle: "quarterly report",
		OCRText:     "revenue grew",
		ImagePath:   "/tmp/a.png",
		ImageHash:   "h1",
	})
	require.NoError(t, err)

	require.NoError(t, tc.run("recall", "search", "revenue"))
	results := decodeOutput[[]store.SearchResult](t, tc)
	require.Len(t, results, 1)
	assert.Equal(t, "Editor", results[0].AppName)

	require.NoError(t, tc.run("recall", "timeline", "--date", "2026-03-01"))
	assert.Len(t, decodeOutput[[]store.CaptureEntry](t, tc), 1)

	err = tc.run("recall", "timeline", "--date", "March")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG")

	assert.Error(t, tc.run("recall", "search"))
}

func TestFolders(t *testing.T) {
	tc := newTestCLI(t)
	dir := t.TempDir()

	require.NoError(t, tc.run("folders", "add", dir))
	id := decodeOutput[map[string]int64](t, tc)["id"]
	assert.NotZero(t, id)

	require.NoError(t, tc.run("folders", "list"))
	folders := decodeOutput[[]store.WatchedFolder](t, tc)
	require.Len(t, folders, 1)
	assert.Equal(t, dir, folders[0].Path)

	require.NoError(t, tc.run("folders", "remove", strconv.FormatInt(id, 10)))
	assert.Error(t, tc.run("folders", "remove", strconv.FormatInt(id, 10)))
	assert.Error(t, tc.run("folders", "remove", "abc"))
	assert.Error(t, tc.run("folders", "add", filepath.Join(dir, "missing")))
}

func TestUploadAndQueue(t *testing.T) {
	tc := newTestCLI(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	require.NoError(t, tc.run("upload", path))
	require.NoError(t, tc.run("queue"))
	items := decodeOutput[[]store.QueueItem](t, tc)
	require.Len(t, items, 1)
	assert.Equal(t, "notes.txt", items[0].FileName)
	assert.Equal(t, store.StatusPending, items[0].Status)
}

func TestExclusions(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run("exclusions", "add", "KeePass"))
	id := decodeOutput[map[string]int64](t, tc)["id"]

	require.NoError(t, tc.run("exclusions", "add", "--type", "window_title", "Private"))
	require.NoError(t, tc.run("exclusions", "list"))
	exclusions := decodeOutput[[]store.Exclusion](t, tc)
	require.Len(t, exclusions, 2)
	assert.Equal(t, store.ExcludeAppName, exclusions[0].Type)
	assert.Equal(t, store.ExcludeWindowTitle, exclusions[1].Type)

	require.NoError(t, tc.run("exclusions", "remove", strconv.FormatInt(id, 10)))
	assert.Error(t, tc.run("exclusions", "add", "--type", "url", "x"))
}

func TestSettingsSet(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run("settings", "set",
		"--theme", "light", "--tts-provider", "cloud", "--interval", "15",
		"--storage-mode", "local+cloud", "--button-chat", "8"))
	settings := decodeOutput[agent.AppSettings](t, tc)
	assert.Equal(t, "light", settings.Theme)
	assert.Equal(t, "cloud", settings.TTSProvider)
	assert.Equal(t, 15, settings.Recall.IntervalSecs)
	assert.Equal(t, store.StorageLocalCloud, settings.Recall.StorageMode)
	assert.Equal(t, 8, settings.Mouse.Chat)
	assert.Equal(t, 4, settings.Mouse.Dictation)

	require.NoError(t, tc.run("settings", "get"))
	assert.Equal(t, "light", decodeOutput[agent.AppSettings](t, tc).Theme)

	err := tc.run("settings", "set", "--button-tts", "4")
	require.Error(t, err)
	assert.Error(t, tc.run("settings", "set", "--tts-provider", "robot"))
}

func TestSyncWithoutSession(t *testing.T) {
	tc := newTestCLI(t)

	require.NoError(t, tc.run("sync"))
	result := decodeOutput[agent.SyncResult](t, tc)
	assert.Zero(t, result.Recall)
}
