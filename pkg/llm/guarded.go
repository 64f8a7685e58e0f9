package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/retry"
)

// GuardedClient adds transient-error retries and a circuit breaker to a Client.
type GuardedClient struct {
	inner   Client
	breaker *CircuitBreaker
	retry   *retry.Config
	logger  *zap.Logger
}

// NewGuardedClient wraps inner. A nil retry config disables retries.
func NewGuardedClient(inner Client, breaker *CircuitBreaker, retryCfg *retry.Config, logger *zap.Logger) *GuardedClient {
	if retryCfg == nil {
		retryCfg = &retry.Config{MaxRetries: 0}
	}
	return &GuardedClient{
		inner:   inner,
		breaker: breaker,
		retry:   retryCfg,
		logger:  logger.Named("llm.guard"),
	}
}

var _ Client = (*GuardedClient)(nil)

// Complete implements Client. Only errors classified as retryable are
// retried; each attempt is counted by the breaker.
func (g *GuardedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	attempt := 0
	return retry.DoIfRetryableWithResult(ctx, g.retry, func() (*Response, error) {
		attempt++
		if err := g.breaker.Allow(); err != nil {
			return nil, err
		}

		resp, err := g.inner.Complete(ctx, req)
		if err != nil {
			classified := ClassifyError(err)
			g.breaker.RecordFailure()
			if classified.Retryable {
				g.logger.Warn("Retryable LLM failure",
					zap.Int("attempt", attempt),
					zap.String("model", req.Model),
					zap.String("error_type", string(classified.Type)),
					zap.String("breaker", g.breaker.State().String()))
			}
			return nil, classified
		}

		g.breaker.RecordSuccess()
		return resp, nil
	})
}
