package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/mondweep/Auto-Analyst/internal/app"
	"github.com/mondweep/Auto-Analyst/internal/codegen"
	"github.com/mondweep/Auto-Analyst/internal/config"
	"github.com/mondweep/Auto-Analyst/internal/dataset"
	"github.com/mondweep/Auto-Analyst/internal/session"
)

// server holds the HTTP surface over the analyst service.
type server struct {
	analyst *app.Analyst
	cfg     *config.Config
	logger  *logging.Logger
}

func newServer(analyst *app.Analyst, cfg *config.Config) *server {
	return &server{
		analyst: analyst,
		cfg:     cfg,
		logger:  logging.New().WithComponent("http"),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/{agent}", s.handleChatWithAgent)
	mux.HandleFunc("POST /code/fix", s.handleFixCode)
	mux.HandleFunc("POST /code/edit", s.handleEditCode)
	mux.HandleFunc("POST /code/clean", s.handleCleanCode)
	mux.HandleFunc("POST /reset-session", s.handleResetSession)
	mux.HandleFunc("POST /upload-dataset", s.handleUploadDataset)
	mux.HandleFunc("POST /dataset/describe", s.handleDescribeDataset)
	mux.HandleFunc("GET /model-settings", s.handleGetModelSettings)
	mux.HandleFunc("POST /model-settings", s.handleSetModelSettings)
	mux.HandleFunc("POST /chat-history-name", s.handleChatHistoryName)
	mux.HandleFunc("GET /agents", s.handleAgents)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// sessionID resolves the client's session, header first, generating a fresh
// ID when the client arrives without one.
func (s *server) sessionID(r *http.Request) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	return session.NewID()
}

func intParam(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encoding failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	sessionID := s.sessionID(r)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Session-ID", sessionID)

	err := s.analyst.Run(r.Context(), w, sessionID, req.Query, intParam(r, "user_id"), intParam(r, "chat_id"))
	if err != nil {
		// The stream may be partially written; all we can do is log.
		s.logger.Warn("chat stream failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// handleChatWithAgent runs one named agent directly, skipping the planner.
// Unlike /chat, the response is a single JSON document, not a stream.
func (s *server) handleChatWithAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	agent := r.PathValue("agent")
	sessionID := s.sessionID(r)
	response, err := s.analyst.RunAgent(r.Context(), sessionID, agent, req.Query, intParam(r, "user_id"), intParam(r, "chat_id"))
	if err != nil {
		if errors.Is(err, app.ErrUnknownAgent) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"agent_name": agent,
		"query":      req.Query,
		"response":   response,
		"session_id": sessionID,
	})
}

func (s *server) handleFixCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}

	fixed, err := s.analyst.FixCode(r.Context(), s.sessionID(r), req.Code, req.Error)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"fixed_code": fixed})
}

func (s *server) handleEditCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string `json:"code"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.Prompt == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code and prompt are required"})
		return
	}

	edited, err := s.analyst.EditCode(r.Context(), s.sessionID(r), req.Code, req.Prompt)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"edited_code": edited})
}

// handleCleanCode normalizes code layout without a model call: imports
// hoisted, marker blocks separated.
func (s *server) handleCleanCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"cleaned_code": codegen.FormatCode(req.Code)})
}

func (s *server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PreserveModelSettings bool `json:"preserve_model_settings"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.analyst.ResetSession(s.sessionID(r), req.PreserveModelSettings); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "session reset"})
}

func (s *server) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path        string `json:"path"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	ds, err := dataset.Load(req.Path, req.Name, req.Description)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.analyst.UpdateDataset(s.sessionID(r), ds); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    ds.Name,
		"rows":    ds.Rows,
		"columns": ds.ColumnNames(),
	})
}

func (s *server) handleDescribeDataset(w http.ResponseWriter, r *http.Request) {
	desc, err := s.analyst.DescribeDataset(r.Context(), s.sessionID(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"description": desc})
}

func (s *server) handleGetModelSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.analyst.CurrentModelSettings(s.sessionID(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *server) handleSetModelSettings(w http.ResponseWriter, r *http.Request) {
	var settings app.ModelSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil || settings.Model == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model is required"})
		return
	}

	if err := s.analyst.UpdateModelSettings(s.sessionID(r), settings); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "model settings updated"})
}

func (s *server) handleChatHistoryName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	name, err := s.analyst.NameChat(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (s *server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"available_agents": s.analyst.StepCatalog(),
		"direct_agents":    s.analyst.AgentNames(),
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"sessions": s.analyst.Sessions().Len(),
	})
}
