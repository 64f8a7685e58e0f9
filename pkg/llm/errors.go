package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType classifies a failed model call.
type ErrorType string

const (
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServer      ErrorType = "server"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeResponse    ErrorType = "response"
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a classified model call failure.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
	Endpoint   string // reported as host only
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, "endpoint="+host)
	}
	parts = append(parts, e.Message)

	msg := strings.Join(parts, " ")
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a classified error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Message: message, Retryable: retryable, Cause: cause}
}

// NewErrorWithContext creates a classified error carrying call context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// classificationRule maps an error message match to a classification.
type classificationRule struct {
	match     func(msg, lower string, status int) bool
	errType   ErrorType
	message   string
	retryable bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Evaluated in order; first match wins.
var classificationRules = []classificationRule{
	{
		match: func(_, lower string, status int) bool {
			return status == 401 || status == 403 || containsAny(lower, "unauthorized", "invalid api key", "invalid x-api-key", "authentication")
		},
		errType: ErrorTypeAuth, message: "authentication failed",
	},
	{
		match: func(_, lower string, _ int) bool {
			return strings.Contains(lower, "model") && containsAny(lower, "not found", "does not exist", "not_found")
		},
		errType: ErrorTypeModel, message: "model not found",
	},
	{
		match:   func(_, _ string, status int) bool { return status == 404 },
		errType: ErrorTypeEndpoint, message: "endpoint not found",
	},
	{
		match:   func(_, lower string, _ int) bool { return containsAny(lower, "connection refused", "no such host") },
		errType: ErrorTypeEndpoint, message: "connection failed", retryable: true,
	},
	{
		match:   func(_, lower string, _ int) bool { return containsAny(lower, "timeout", "deadline exceeded") },
		errType: ErrorTypeTimeout, message: "request timeout", retryable: true,
	},
	{
		match:   func(_, lower string, status int) bool { return status == 429 || containsAny(lower, "rate limit", "rate_limit", "too many requests") },
		errType: ErrorTypeRateLimit, message: "rate limited", retryable: true,
	},
	{
		match: func(_, lower string, status int) bool {
			return status >= 500 || containsAny(lower, "overloaded", "service unavailable")
		},
		errType: ErrorTypeServer, message: "server error", retryable: true,
	},
}

// ClassifyError categorizes a provider error. Errors that are already
// classified are returned unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	// Cancellation is the caller's decision and must not be retried.
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeTimeout, "request canceled", false, err)
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	status := extractStatusCode(msg)

	for _, rule := range classificationRules {
		if rule.match(msg, lower, status) {
			e := NewError(rule.errType, rule.message, rule.retryable, err)
			e.StatusCode = status
			return e
		}
	}

	e := NewError(ErrorTypeUnknown, "llm error", false, err)
	e.StatusCode = status
	return e
}

func classifyWithContext(err error, model, endpoint string) *Error {
	e := ClassifyError(err)
	if e.Model == "" {
		e.Model = model
	}
	if e.Endpoint == "" {
		e.Endpoint = endpoint
	}
	return e
}

var statusCodePattern = regexp.MustCompile(`(?i)(?:status(?:\s+code)?[:=\s]+|http\s+)(\d{3})\b`)

// extractStatusCode finds an HTTP status in the message ("status code: 503",
// "HTTP 429"). Bare three-digit numbers elsewhere in the text are ignored.
func extractStatusCode(msg string) int {
	m := statusCodePattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil || code < 100 || code > 599 {
		return 0
	}
	return code
}

// IsRetryable returns true if the error is a retryable classified error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
