package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlfinder/voyago/internal/llm"
)

type wsEvent struct {
	Type   string          `json:"type"`
	Tool   string          `json:"tool,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func wsURL(httpURL, path string) string {
	return strings.Replace(httpURL, "http://", "ws://", 1) + path
}

func TestWebSocketTurnStreaming(t *testing.T) {
	mock := &llm.MockClient{Script: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "geocode_location", Arguments: json.RawMessage(`{"query": "Jean-Talon Market"}`)}}},
		{Content: "The market is on the blue line.", FinishReason: "stop"},
	}}
	srv, _ := newTestServer(t, mock)
	id := createSession(t, srv.URL)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/session/"+id+"/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatRequest{Content: "How do I get to Jean-Talon Market?"}))

	var types []string
	var final wsEvent
	for {
		var evt wsEvent
		require.NoError(t, conn.ReadJSON(&evt))
		types = append(types, evt.Type)
		if evt.Type == "done" || evt.Type == "error" {
			final = evt
			break
		}
	}

	assert.Equal(t, []string{"tool_start", "tool_result", "done"}, types)

	var result chatResponse
	require.NoError(t, json.Unmarshal(final.Result, &result))
	assert.Equal(t, "The market is on the blue line.", result.Response)
	assert.Equal(t, id, result.SessionID)
}

func TestWebSocketEmptyContent(t *testing.T) {
	srv, _ := newTestServer(t, &llm.MockClient{})
	id := createSession(t, srv.URL)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/session/"+id+"/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatRequest{}))

	var evt wsEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, "error", evt.Type)
	assert.Equal(t, "content is required", evt.Error)
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, &llm.MockClient{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/session/nope/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
