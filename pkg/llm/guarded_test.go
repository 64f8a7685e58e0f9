package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/retry"
)

func fastRetry(n int) *retry.Config {
	return &retry.Config{MaxRetries: n, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestGuardedClient_RetriesTransientErrors(t *testing.T) {
	mock := &MockClient{}
	mock.CompleteFunc = func(ctx context.Context, req Request) (*Response, error) {
		if mock.Calls() < 3 {
			return nil, errors.New("error, status code: 503, status: 503 Service Unavailable")
		}
		return &Response{Content: "ok"}, nil
	}

	breaker := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 10, ResetAfter: time.Minute})
	g := NewGuardedClient(mock, breaker, fastRetry(3), zap.NewNop())

	resp, err := g.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, 0, breaker.ConsecutiveFailures())
}

func TestGuardedClient_PermanentErrorNotRetried(t *testing.T) {
	mock := &MockClient{CompleteFunc: func(ctx context.Context, req Request) (*Response, error) {
		return nil, errors.New("error, status code: 401, message: invalid api key")
	}}
	g := NewGuardedClient(mock, NewCircuitBreaker(DefaultCircuitBreakerConfig()), fastRetry(3), zap.NewNop())

	_, err := g.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
	assert.Equal(t, 1, mock.Calls())
}

func TestGuardedClient_OpenCircuitShortCircuits(t *testing.T) {
	mock := &MockClient{CompleteFunc: func(ctx context.Context, req Request) (*Response, error) {
		return nil, errors.New("connection refused")
	}}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour})
	g := NewGuardedClient(mock, breaker, fastRetry(5), zap.NewNop())

	_, err := g.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))
	assert.Equal(t, 2, mock.Calls())

	// Subsequent calls never reach the provider
	_, err = g.Complete(context.Background(), Request{})
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))
	assert.Equal(t, 2, mock.Calls())
}

func TestGuardedClient_NilRetryConfig(t *testing.T) {
	mock := &MockClient{CompleteFunc: func(ctx context.Context, req Request) (*Response, error) {
		return nil, errors.New("i/o timeout")
	}}
	g := NewGuardedClient(mock, NewCircuitBreaker(DefaultCircuitBreakerConfig()), nil, zap.NewNop())

	_, err := g.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls())
}
