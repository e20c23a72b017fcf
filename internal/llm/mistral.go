package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MistralClient is a direct HTTP client for the Mistral chat-completions API.
// The wire format is OpenAI-compatible: tool declarations go out under
// "tools", the model answers with "tool_calls", and tool results go back as
// tool-role messages carrying "tool_call_id".
type MistralClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewMistralClient creates a Mistral client. baseURL without the
// /v1/chat/completions suffix; pass an httptest server URL in tests.
func NewMistralClient(apiKey, model, baseURL string, timeout time.Duration) *MistralClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MistralClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Complete sends a non-streaming completion request.
func (c *MistralClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	payload, err := json.Marshal(c.buildRequestBody(model, req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: "mistral", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "mistral", Message: "reading response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "mistral", Code: resp.StatusCode, Message: string(respBody)}
	}

	var result mistralResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ProviderError{Provider: "mistral", Message: "parsing response: " + err.Error()}
	}
	if len(result.Choices) == 0 {
		return nil, &ProviderError{Provider: "mistral", Message: "empty choices in response"}
	}

	return c.responseToCompletion(&result, time.Since(start)), nil
}

// Name returns the provider name.
func (c *MistralClient) Name() string {
	return "mistral"
}

func (c *MistralClient) buildRequestBody(model string, req CompletionRequest) map[string]any {
	body := map[string]any{
		"model":    model,
		"messages": messagesToWire(req.Messages),
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			}
		}
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}
	return body
}

func messagesToWire(msgs []Message) []map[string]any {
	wire := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		wm := map[string]any{
			"role":    m.Role,
			"content": m.Content,
		}
		if len(m.ToolCalls) > 0 {
			calls := make([]map[string]any, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": string(tc.Arguments),
					},
				}
			}
			wm["tool_calls"] = calls
		}
		if m.Role == RoleTool {
			wm["tool_call_id"] = m.ToolCallID
			if m.Name != "" {
				wm["name"] = m.Name
			}
		}
		wire = append(wire, wm)
	}
	return wire
}

func (c *MistralClient) responseToCompletion(resp *mistralResponse, duration time.Duration) *CompletionResponse {
	choice := resp.Choices[0]

	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments.raw(),
		})
	}

	return &CompletionResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Model:    resp.Model,
		Duration: duration,
	}
}

// Wire structures

type mistralResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []mistralChoice `json:"choices"`
	Usage   mistralUsage    `json:"usage"`
}

type mistralUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type mistralChoice struct {
	Index        int            `json:"index"`
	Message      mistralMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type mistralMessage struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []mistralToolCall `json:"tool_calls,omitempty"`
}

type mistralToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function mistralFunction `json:"function"`
}

type mistralFunction struct {
	Name      string           `json:"name"`
	Arguments mistralArguments `json:"arguments"`
}

// mistralArguments tolerates both encodings the API uses for function
// arguments: a JSON-encoded string or a bare JSON object.
type mistralArguments struct {
	data json.RawMessage
}

func (a *mistralArguments) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		a.data = json.RawMessage(s)
		return nil
	}
	a.data = append(json.RawMessage(nil), b...)
	return nil
}

func (a mistralArguments) raw() json.RawMessage {
	if len(a.data) == 0 {
		return json.RawMessage("{}")
	}
	return a.data
}
