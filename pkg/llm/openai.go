package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client   *openai.Client
	endpoint string
	defaults Defaults
	logger   *zap.Logger
}

// NewOpenAIClient creates a client for the given base URL. An empty base URL
// uses api.openai.com.
func NewOpenAIClient(baseURL, apiKey string, defaults Defaults, logger *zap.Logger) (*OpenAIClient, error) {
	if defaults.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		endpoint: cfg.BaseURL,
		defaults: defaults,
		logger:   logger.Named("llm.openai"),
	}, nil
}

var _ Client = (*OpenAIClient)(nil)

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	req = c.defaults.apply(req)

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	c.logger.Debug("LLM request",
		zap.String("model", req.Model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		c.logger.Warn("LLM request failed",
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, classifyWithContext(err, req.Model, c.endpoint)
	}
	if len(resp.Choices) == 0 {
		return nil, NewErrorWithContext(ErrorTypeResponse, "no choices in response", false, nil, req.Model, c.endpoint, 0)
	}

	c.logger.Debug("LLM request completed",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            req.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// endpointHost reduces an endpoint URL to its host for error messages.
func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
