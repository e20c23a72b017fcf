package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mtlfinder/voyago/internal/agent"
	"github.com/mtlfinder/voyago/internal/session"
)

// wsError is sent when a turn cannot complete. The connection stays open so
// the client can retry.
type wsError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// handleWebSocket streams turn progress events over a WebSocket connection.
// The client sends one chatRequest frame per turn; the server replies with a
// sequence of tool_start/tool_result/tool_error events and a final done
// event carrying the full result.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Reject unknown sessions before upgrading.
	if _, err := s.sessions.Get(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)

	s.log.Debug().Str("sessionId", id).Str("remote", r.RemoteAddr).Msg("websocket connected")

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("sessionId", id).Msg("websocket closed")
			} else {
				s.log.Warn().Err(err).Str("sessionId", id).Msg("websocket read error")
			}
			return
		}

		if req.Content == "" {
			conn.WriteJSON(wsError{Type: "error", Error: "content is required", Code: http.StatusBadRequest})
			continue
		}

		s.runTurnStreaming(r.Context(), conn, id, req)
	}
}

// runTurnStreaming executes one turn and forwards its events to the
// connection. Events are emitted synchronously from the runner, so writes
// never interleave.
func (s *Server) runTurnStreaming(parent context.Context, conn *websocket.Conn, id string, req chatRequest) {
	ctx, cancel := context.WithTimeout(parent, turnTimeout)
	defer cancel()

	_, err := s.runner.RunWithEvents(ctx, agent.TurnRequest{
		SessionID: id,
		Content:   req.Content,
		Location:  req.Location,
	}, func(evt agent.Event) {
		if evt.Type == "done" {
			conn.WriteJSON(map[string]any{
				"type":   "done",
				"result": turnToResponse(evt.Result),
			})
			return
		}
		conn.WriteJSON(evt)
	})
	if err != nil {
		code := http.StatusInternalServerError
		message := "chat turn failed"
		switch {
		case errors.Is(err, session.ErrNotFound):
			code, message = http.StatusNotFound, "session not found"
		case errors.Is(err, agent.ErrModelUnavailable):
			code, message = http.StatusBadGateway, "the assistant is temporarily unavailable, please retry"
		}
		s.log.Error().Err(err).Str("sessionId", id).Msg("streaming turn failed")
		conn.WriteJSON(wsError{Type: "error", Error: message, Code: code})
	}
}
