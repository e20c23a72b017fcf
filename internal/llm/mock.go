package llm

import "context"

// MockClient is a test double for Client. Responses can be scripted by
// assigning CompleteFunc, or queued in order via Script.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	Script   []*CompletionResponse
	Requests []CompletionRequest
	next     int
}

func (m *MockClient) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.Requests = append(m.Requests, req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if m.next < len(m.Script) {
		resp := m.Script[m.next]
		m.next++
		return resp, nil
	}
	return &CompletionResponse{Content: "mock response"}, nil
}
