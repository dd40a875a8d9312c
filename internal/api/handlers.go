package api

import (
	"net/http"

	"github.com/BGMLAI/exoskull/internal/agent"
	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/mouse"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.agent.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.agent.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.Logout(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.AuthStatus(r.Context()))
}

func (s *Server) handleRecallStart(w http.ResponseWriter, r *http.Request) {
	// The loop outlives the request; it is bound to the agent's own context.
	if err := s.agent.StartRecall(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleRecallStop(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.StopRecall(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleRecallSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.agent.SearchRecall(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRecallTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.agent.RecallTimeline(r.Context(), q.Get("date"), q.Get("app"), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.agent.Capture(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleCaptureImage(w http.ResponseWriter, r *http.Request) {
	s.serveCaptureFile(w, r, false)
}

func (s *Server) handleCaptureThumbnail(w http.ResponseWriter, r *http.Request) {
	s.serveCaptureFile(w, r, true)
}

func (s *Server) serveCaptureFile(w http.ResponseWriter, r *http.Request, thumb bool) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.agent.Capture(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	path := entry.ImagePath
	if thumb {
		if entry.ThumbnailPath == "" {
			s.writeError(w, r, apperr.NotFound("thumbnail"))
			return
		}
		path = entry.ThumbnailPath
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

func (s *Server) handleRecallSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.agent.RecallSettings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateRecallSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntervalSecs *int    `json:"interval_secs"`
		StorageMode  *string `json:"storage_mode"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agent.UpdateRecallSettings(r.Context(), req.IntervalSecs, req.StorageMode); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleRecallSettings(w, r)
}

func (s *Server) handleExclusions(w http.ResponseWriter, r *http.Request) {
	exclusions, err := s.agent.Exclusions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exclusions)
}

func (s *Server) handleAddExclusion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
		Type    string `json:"type"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.agent.AddExclusion(r.Context(), req.Pattern, req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleRemoveExclusion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agent.RemoveExclusion(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDictationStart(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.StartDictation(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDictationStop(w http.ResponseWriter, r *http.Request) {
	text, err := s.agent.StopDictation(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agent.Speak(r.Context(), req.Text); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleStopSpeaking(w http.ResponseWriter, r *http.Request) {
	s.agent.StopSpeaking()
	writeOK(w)
}

func (s *Server) handleMouseConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.MouseConfig(r.Context()))
}

func (s *Server) handleUpdateMouseConfig(w http.ResponseWriter, r *http.Request) {
	var b mouse.Buttons
	if err := decodeBody(r, &b); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agent.UpdateMouseConfig(r.Context(), b); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.agent.MouseConfig(r.Context()))
}

// handleMousePress simulates a button press, for UIs without a global hook.
func (s *Server) handleMousePress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Button int `json:"button"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	action := s.agent.Mouse().Press(r.Context(), req.Button)
	writeJSON(w, http.StatusOK, map[string]string{"action": action})
}

func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.agent.WatchedFolders(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.agent.AddWatchedFolder(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleRemoveFolder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agent.RemoveWatchedFolder(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	items, err := s.agent.UploadQueue(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.agent.UploadFile(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"id": id})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.agent.SyncNow(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.agent.Settings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u agent.SettingsUpdate
	if err := decodeBody(r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agent.UpdateSettings(r.Context(), u); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleSettings(w, r)
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.agent.Goals(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	goal, err := s.agent.CreateGoal(r.Context(), req.Title, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.agent.Tasks(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.agent.SearchKnowledge(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	text, err := s.agent.Chat(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
