// Package llm provides the language model clients used by the chat workflow.
// Two providers are supported: OpenAI-compatible endpoints (OpenAI, DashScope,
// vLLM, ...) and Anthropic.
package llm

import (
	"context"
)

// Request is one single-turn completion: a system prompt and a user prompt.
type Request struct {
	System      string
	Prompt      string
	Model       string  // Overrides the client default when set
	Temperature float64 // 0 leaves the provider default
	MaxTokens   int     // 0 leaves the client default
	JSONMode    bool    // Ask the provider for a JSON object response when supported
}

// Response is the text of a completion plus usage accounting.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client completes prompts against a language model.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Defaults are applied to every Request that leaves a field unset.
type Defaults struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

func (d Defaults) apply(req Request) Request {
	if req.Model == "" {
		req.Model = d.Model
	}
	if req.Temperature == 0 {
		req.Temperature = d.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = d.MaxTokens
	}
	return req
}
