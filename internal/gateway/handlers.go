package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mtlfinder/voyago/internal/agent"
	"github.com/mtlfinder/voyago/internal/domain"
	"github.com/mtlfinder/voyago/internal/session"
	"github.com/mtlfinder/voyago/internal/version"
)

// chatRequest is one user message submitted to a session.
type chatRequest struct {
	Content  string           `json:"content"`
	Location *domain.Location `json:"location,omitempty"`
}

// chatResponse is the completed turn.
type chatResponse struct {
	SessionID    string                 `json:"session_id"`
	Response     string                 `json:"response"`
	Model        string                 `json:"model,omitempty"`
	ToolTrace    []agent.ToolTraceEntry `json:"tool_trace,omitempty"`
	Rounds       int                    `json:"rounds"`
	LimitReached bool                   `json:"limit_reached,omitempty"`
	DurationMs   int64                  `json:"duration_ms"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// handleRoot identifies the service.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "voyago",
		"status":  "running",
		"version": version.Version,
	})
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleCreateSession starts a new empty conversation.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("session create failed")
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	s.log.Info().Str("sessionId", sess.ID).Msg("session created")
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
	})
}

// handleChat processes one user message and returns the assistant's reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), turnTimeout)
	defer cancel()

	result, err := s.runner.Run(ctx, agent.TurnRequest{
		SessionID: id,
		Content:   req.Content,
		Location:  req.Location,
	})
	if err != nil {
		s.writeTurnError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, turnToResponse(result))
}

// handleHistory returns the full ordered message history of a session.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	msgs, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.Error().Err(err).Str("sessionId", id).Msg("history load failed")
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   msgs,
		"count":      len(msgs),
	})
}

// handleDeleteSession removes a session and its history.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.Error().Err(err).Str("sessionId", id).Msg("session delete failed")
		writeError(w, http.StatusInternalServerError, "could not delete session")
		return
	}

	s.log.Info().Str("sessionId", id).Msg("session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func (s *Server) writeTurnError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, agent.ErrModelUnavailable):
		s.log.Error().Err(err).Str("sessionId", sessionID).Msg("model unavailable")
		writeError(w, http.StatusBadGateway, "the assistant is temporarily unavailable, please retry")
	default:
		s.log.Error().Err(err).Str("sessionId", sessionID).Msg("chat turn failed")
		writeError(w, http.StatusInternalServerError, "chat turn failed")
	}
}

func turnToResponse(result *agent.TurnResult) chatResponse {
	return chatResponse{
		SessionID:    result.SessionID,
		Response:     result.Response,
		Model:        result.Model,
		ToolTrace:    result.ToolTrace,
		Rounds:       result.Rounds,
		LimitReached: result.LimitReached,
		DurationMs:   result.Duration.Milliseconds(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
