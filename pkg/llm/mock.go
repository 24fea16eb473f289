package llm

import "context"

// MockClient is a configurable mock for testing LLM-backed code.
// Set the function fields to control behavior in tests.
type MockClient struct {
	// ChatFunc is called when Chat is invoked. If nil, Chat returns
	// an empty result and nil error.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResult, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification.
	ChatCalls    int
	LastRequest  ChatRequest
	SeenRequests []ChatRequest
}

// NewMockClient creates a new mock with defaults.
func NewMockClient() *MockClient {
	return &MockClient{ModelName: "mock-model"}
}

// Chat implements Client.
func (m *MockClient) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	m.ChatCalls++
	m.LastRequest = req
	m.SeenRequests = append(m.SeenRequests, req)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return &ChatResult{}, nil
}

// Model implements Client.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Reset clears call tracking.
func (m *MockClient) Reset() {
	m.ChatCalls = 0
	m.LastRequest = ChatRequest{}
	m.SeenRequests = nil
}

var _ Client = (*MockClient)(nil)
