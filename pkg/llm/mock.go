package llm

import (
	"context"
	"sync"
)

// MockClient is a configurable Client for tests. Set CompleteFunc to control
// behavior; every request is recorded.
type MockClient struct {
	CompleteFunc func(ctx context.Context, req Request) (*Response, error)

	mu       sync.Mutex
	Requests []Request
}

var _ Client = (*MockClient)(nil)

// NewMockClient returns a mock that always answers with content.
func NewMockClient(content string) *MockClient {
	return &MockClient{
		CompleteFunc: func(ctx context.Context, req Request) (*Response, error) {
			return &Response{Content: content, Model: req.Model}, nil
		},
	}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &Response{Model: req.Model}, nil
}

// Calls returns the number of Complete invocations.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
