package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/config"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/retry"
)

// NewClientFromConfig builds the provider client named by cfg.Provider and
// wraps it in a GuardedClient.
func NewClientFromConfig(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: LLM_API_KEY is not set", apperrors.ErrLLMNotConfigured)
	}

	defaults := Defaults{
		Model:       cfg.IntentModel,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	var (
		inner Client
		err   error
	)
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		inner, err = NewOpenAIClient(cfg.BaseURL, cfg.APIKey, defaults, logger)
	case config.LLMProviderAnthropic:
		inner, err = NewAnthropicClient(cfg.BaseURL, cfg.APIKey, defaults, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", apperrors.ErrLLMNotConfigured, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:  cfg.BreakerThreshold,
		ResetAfter: cfg.BreakerResetAfter,
	})
	return NewGuardedClient(inner, breaker, retry.LLMConfig(cfg.MaxRetries), logger), nil
}
