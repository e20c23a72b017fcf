package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mistralFinalFixture() string {
	return `{
		"id": "cmpl-1",
		"model": "mistral-small-latest",
		"choices": [
			{
				"index": 0,
				"message": {"role": "assistant", "content": "Bonjour!"},
				"finish_reason": "stop"
			}
		],
		"usage": {"prompt_tokens": 120, "completion_tokens": 8}
	}`
}

func TestMistralComplete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Write([]byte(mistralFinalFixture()))
	}))
	defer srv.Close()

	client := NewMistralClient("test-key", "mistral-small-latest", srv.URL, 10*time.Second)

	temp := 0.4
	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a travel assistant."},
			{Role: RoleUser, Content: "Salut"},
		},
		Tools: []ToolDefinition{
			{Name: "geocode_location", Description: "geocode", Parameters: json.RawMessage(`{"type": "object"}`)},
		},
		MaxTokens:   500,
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "mistral-small-latest", gotBody["model"])
	assert.Equal(t, 500.0, gotBody["max_tokens"])
	assert.Equal(t, 0.4, gotBody["temperature"])
	assert.Equal(t, "auto", gotBody["tool_choice"])

	wireTools, _ := gotBody["tools"].([]any)
	require.Len(t, wireTools, 1)
	tool := wireTools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	fn := tool["function"].(map[string]any)
	assert.Equal(t, "geocode_location", fn["name"])

	assert.Equal(t, "Bonjour!", resp.Content)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 8, resp.Usage.OutputTokens)
}

func TestMistralCompleteToolCalls(t *testing.T) {
	// Arguments arrive both as a JSON-encoded string and a bare object
	// depending on the model; both must decode.
	fixture := `{
		"id": "cmpl-2",
		"model": "mistral-small-latest",
		"choices": [
			{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [
						{"id": "c1", "type": "function", "function": {"name": "geocode_location", "arguments": "{\"query\": \"Mile End\"}"}},
						{"id": "c2", "type": "function", "function": {"name": "get_weather", "arguments": {"latitude": 45.52, "longitude": -73.6}}}
					]
				},
				"finish_reason": "tool_calls"
			}
		],
		"usage": {"prompt_tokens": 200, "completion_tokens": 30}
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	client := NewMistralClient("k", "mistral-small-latest", srv.URL, 10*time.Second)

	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "weather in Mile End?"}},
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "c1", resp.ToolCalls[0].ID)
	assert.Equal(t, "geocode_location", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query": "Mile End"}`, string(resp.ToolCalls[0].Arguments))
	assert.JSONEq(t, `{"latitude": 45.52, "longitude": -73.6}`, string(resp.ToolCalls[1].Arguments))
	assert.Equal(t, "tool_calls", resp.FinishReason)
}

func TestMistralToolMessagesOnWire(t *testing.T) {
	var gotBody struct {
		Messages []map[string]any `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Write([]byte(mistralFinalFixture()))
	}))
	defer srv.Close()

	client := NewMistralClient("k", "mistral-small-latest", srv.URL, 10*time.Second)

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "plan it"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "plan_trip", Arguments: json.RawMessage(`{"mode": "ALL"}`)}}},
			{Role: RoleTool, Content: `{"count": 1}`, ToolCallID: "c1", Name: "plan_trip"},
		},
	})
	require.NoError(t, err)

	require.Len(t, gotBody.Messages, 3)

	asst := gotBody.Messages[1]
	calls, _ := asst["tool_calls"].([]any)
	require.Len(t, calls, 1)
	call := calls[0].(map[string]any)
	assert.Equal(t, "c1", call["id"])
	fn := call["function"].(map[string]any)
	args, _ := fn["arguments"].(string)
	assert.JSONEq(t, `{"mode": "ALL"}`, args)

	tool := gotBody.Messages[2]
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "c1", tool["tool_call_id"])
	assert.Equal(t, "plan_trip", tool["name"])
}

func TestMistralErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message": "rate limited"}`))
	}))
	defer srv.Close()

	client := NewMistralClient("k", "mistral-small-latest", srv.URL, 10*time.Second)

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "mistral", provErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, provErr.Code)
}

func TestMistralEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "x", "model": "m", "choices": []}`))
	}))
	defer srv.Close()

	client := NewMistralClient("k", "m", srv.URL, 10*time.Second)

	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Message, "empty choices")
}

func TestMockClientScript(t *testing.T) {
	mock := &MockClient{Script: []*CompletionResponse{
		{Content: "one"},
		{Content: "two"},
	}}

	r1, err := mock.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	r2, _ := mock.Complete(context.Background(), CompletionRequest{})
	r3, _ := mock.Complete(context.Background(), CompletionRequest{})

	assert.Equal(t, "one", r1.Content)
	assert.Equal(t, "two", r2.Content)
	assert.Equal(t, "mock response", r3.Content)
	assert.Len(t, mock.Requests, 3)
}
