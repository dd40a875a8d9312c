// Package api serves the local control API the desktop UI talks to: JSON
// endpoints for every agent command and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/BGMLAI/exoskull/internal/agent"
	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/logging"
)

// Server holds dependencies and provides HTTP handlers
type Server struct {
	agent  *agent.Agent
	hub    *WebSocketHub
	logger *logging.Logger
}

// NewServer creates a server around an agent and the hub its events go to
func NewServer(a *agent.Agent, hub *WebSocketHub, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{agent: a, hub: hub, logger: logger}
}

// RegisterRoutes sets up all HTTP routes
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Session
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)

	// Recall
	mux.HandleFunc("POST /api/recall/start", s.handleRecallStart)
	mux.HandleFunc("POST /api/recall/stop", s.handleRecallStop)
	mux.HandleFunc("GET /api/recall/search", s.handleRecallSearch)
	mux.HandleFunc("GET /api/recall/timeline", s.handleRecallTimeline)
	mux.HandleFunc("GET /api/recall/captures/{id}", s.handleCapture)
	mux.HandleFunc("GET /api/recall/captures/{id}/image", s.handleCaptureImage)
	mux.HandleFunc("GET /api/recall/captures/{id}/thumbnail", s.handleCaptureThumbnail)
	mux.HandleFunc("GET /api/recall/settings", s.handleRecallSettings)
	mux.HandleFunc("PUT /api/recall/settings", s.handleUpdateRecallSettings)
	mux.HandleFunc("GET /api/recall/exclusions", s.handleExclusions)
	mux.HandleFunc("POST /api/recall/exclusions", s.handleAddExclusion)
	mux.HandleFunc("DELETE /api/recall/exclusions/{id}", s.handleRemoveExclusion)

	// Assistant
	mux.HandleFunc("POST /api/dictation/start", s.handleDictationStart)
	mux.HandleFunc("POST /api/dictation/stop", s.handleDictationStop)
	mux.HandleFunc("POST /api/tts/speak", s.handleSpeak)
	mux.HandleFunc("POST /api/tts/stop", s.handleStopSpeaking)
	mux.HandleFunc("GET /api/mouse/config", s.handleMouseConfig)
	mux.HandleFunc("PUT /api/mouse/config", s.handleUpdateMouseConfig)
	mux.HandleFunc("POST /api/mouse/press", s.handleMousePress)

	// Uploads
	mux.HandleFunc("GET /api/folders", s.handleFolders)
	mux.HandleFunc("POST /api/folders", s.handleAddFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", s.handleRemoveFolder)
	mux.HandleFunc("GET /api/uploads", s.handleUploads)
	mux.HandleFunc("POST /api/uploads", s.handleUploadFile)
	mux.HandleFunc("POST /api/sync", s.handleSync)

	// Settings
	mux.HandleFunc("GET /api/settings", s.handleSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	// Remote passthrough
	mux.HandleFunc("GET /api/goals", s.handleGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/knowledge/search", s.handleKnowledgeSearch)
	mux.HandleFunc("POST /api/chat", s.handleChat)

	// WebSocket
	mux.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return apperr.Config("cannot listen on %s: %v", addr, err)
	}

	server := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening on http://%s", ln.Addr())
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// writeError maps the error kind to a status and sends {"error": message}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(map[string]interface{}{
			"path":   r.URL.Path,
			"status": status,
		}).Error("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody reads a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Config("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Config("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// queryInt returns the integer query parameter name, or def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Config("invalid %s %q", name, v)
	}
	return n, nil
}
