package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const anthropicDefaultMaxTokens = 2048

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client   *anthropic.Client
	endpoint string
	defaults Defaults
	logger   *zap.Logger
}

// NewAnthropicClient creates a client. baseURL is optional.
func NewAnthropicClient(baseURL, apiKey string, defaults Defaults, logger *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if defaults.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if defaults.MaxTokens == 0 {
		defaults.MaxTokens = anthropicDefaultMaxTokens
	}

	var opts []anthropic.ClientOption
	endpoint := "https://api.anthropic.com/v1"
	if baseURL != "" {
		endpoint = strings.TrimSuffix(baseURL, "/")
		opts = append(opts, anthropic.WithBaseURL(endpoint))
	}

	return &AnthropicClient{
		client:   anthropic.NewClient(apiKey, opts...),
		endpoint: endpoint,
		defaults: defaults,
		logger:   logger.Named("llm.anthropic"),
	}, nil
}

var _ Client = (*AnthropicClient)(nil)

// Complete implements Client. JSONMode has no provider switch here; the
// prompts already demand JSON output.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	req = c.defaults.apply(req)

	prompt := req.Prompt
	msgReq := anthropic.MessagesRequest{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		msgReq.Temperature = &temp
	}

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, msgReq)
	if err != nil {
		c.logger.Warn("LLM request failed",
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, classifyWithContext(err, req.Model, c.endpoint)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, NewErrorWithContext(ErrorTypeResponse, "no text content in response", false, nil, req.Model, c.endpoint, 0)
	}

	c.logger.Debug("LLM request completed",
		zap.String("model", req.Model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		Content:          text.String(),
		Model:            req.Model,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}
