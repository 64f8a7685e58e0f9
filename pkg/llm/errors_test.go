package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("upstream said no")
	err := NewErrorWithContext(ErrorTypeServer, "server error", true, cause, "qwen-plus", "https://dashscope.aliyuncs.com/compatible-mode/v1", 503)

	msg := err.Error()
	assert.Contains(t, msg, "server")
	assert.Contains(t, msg, "HTTP 503")
	assert.Contains(t, msg, "model=qwen-plus")
	assert.Contains(t, msg, "endpoint=dashscope.aliyuncs.com")
	assert.NotContains(t, msg, "compatible-mode")
	assert.Contains(t, msg, "upstream said no")
}

func TestError_MinimalContext(t *testing.T) {
	err := NewError(ErrorTypeUnknown, "llm error", false, nil)
	assert.Equal(t, "unknown llm error", err.Error())
}

func TestError_UnwrapAndRetryable(t *testing.T) {
	cause := errors.New("root")
	err := NewError(ErrorTypeTimeout, "request timeout", true, cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		retryable  bool
		wantStatus int
	}{
		{"openai auth", errors.New("error, status code: 401, status: 401 Unauthorized, message: Incorrect API key"), ErrorTypeAuth, false, 401},
		{"anthropic auth", errors.New("anthropic api error type: authentication_error, message: invalid x-api-key"), ErrorTypeAuth, false, 0},
		{"model missing", errors.New("error, status code: 404, message: The model `qwen-max-x` does not exist"), ErrorTypeModel, false, 404},
		{"endpoint missing", errors.New("error, status code: 404, message: page not found"), ErrorTypeEndpoint, false, 404},
		{"refused", errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"), ErrorTypeEndpoint, true, 0},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeTimeout, true, 0},
		{"rate limit", errors.New("error, status code: 429, message: Requests rate limit exceeded"), ErrorTypeRateLimit, true, 429},
		{"anthropic rate limit", errors.New("anthropic api error type: rate_limit_error"), ErrorTypeRateLimit, true, 0},
		{"server", errors.New("error, status code: 502, status: 502 Bad Gateway"), ErrorTypeServer, true, 502},
		{"overloaded", errors.New("anthropic api error type: overloaded_error"), ErrorTypeServer, true, 0},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyError_CanceledNotRetryable(t *testing.T) {
	got := ClassifyError(fmt.Errorf("call: %w", context.Canceled))
	assert.False(t, got.Retryable)
}

func TestClassifyError_PreservesClassified(t *testing.T) {
	original := NewError(ErrorTypeAuth, "authentication failed", false, nil)
	assert.Same(t, original, ClassifyError(fmt.Errorf("wrap: %w", original)))
	assert.Nil(t, ClassifyError(nil))
}

func TestExtractStatusCode(t *testing.T) {
	assert.Equal(t, 503, extractStatusCode("error, status code: 503, status: 503"))
	assert.Equal(t, 429, extractStatusCode("HTTP 429 Too Many Requests"))
	// Numbers that are not statuses are ignored
	assert.Equal(t, 0, extractStatusCode("processed 500 rows in 404ms"))
}
