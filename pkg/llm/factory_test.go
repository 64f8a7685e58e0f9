package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/config"
)

func testLLMConfig(provider string) config.LLMConfig {
	return config.LLMConfig{
		Provider:          provider,
		BaseURL:           "http://localhost:9999/v1",
		APIKey:            "key",
		IntentModel:       "qwen-plus",
		SQLModel:          "qwen3-coder-plus",
		Temperature:       0.1,
		MaxTokens:         1024,
		MaxRetries:        2,
		BreakerThreshold:  5,
		BreakerResetAfter: 30 * time.Second,
	}
}

func TestNewClientFromConfig(t *testing.T) {
	for _, provider := range []string{config.LLMProviderOpenAI, config.LLMProviderAnthropic} {
		t.Run(provider, func(t *testing.T) {
			client, err := NewClientFromConfig(testLLMConfig(provider), zap.NewNop())
			require.NoError(t, err)
			assert.IsType(t, &GuardedClient{}, client)
		})
	}
}

func TestNewClientFromConfig_Errors(t *testing.T) {
	cfg := testLLMConfig(config.LLMProviderOpenAI)
	cfg.APIKey = ""
	_, err := NewClientFromConfig(cfg, zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrLLMNotConfigured)

	cfg = testLLMConfig("gemini")
	_, err = NewClientFromConfig(cfg, zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrLLMNotConfigured)
}
