package chatflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// Observer receives step lifecycle events. It is a side channel: the Router
// calls it synchronously around every step and ignores anything it does,
// including panics.
type Observer interface {
	OnStart(ctx context.Context, step models.ChatStepName)
	OnEnd(ctx context.Context, step models.ChatStepName)
	OnError(ctx context.Context, step models.ChatStepName, message string)
}

// NopObserver ignores every event.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) OnStart(context.Context, models.ChatStepName) {}

func (NopObserver) OnEnd(context.Context, models.ChatStepName) {}

func (NopObserver) OnError(context.Context, models.ChatStepName, string) {}

// LoggingObserver writes step events to zap.
type LoggingObserver struct {
	logger *zap.Logger
}

var _ Observer = (*LoggingObserver)(nil)

// NewLoggingObserver creates an observer logging under "chatflow.steps".
func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger.Named("chatflow.steps")}
}

func (o *LoggingObserver) OnStart(_ context.Context, step models.ChatStepName) {
	o.logger.Debug("Step started", zap.String("step", string(step)))
}

func (o *LoggingObserver) OnEnd(_ context.Context, step models.ChatStepName) {
	o.logger.Info("Step completed", zap.String("step", string(step)))
}

func (o *LoggingObserver) OnError(_ context.Context, step models.ChatStepName, message string) {
	o.logger.Warn("Step failed", zap.String("step", string(step)), zap.String("error", message))
}

// MultiObserver forwards every event to each observer in order. Nil entries are skipped.
type MultiObserver []Observer

var _ Observer = MultiObserver(nil)

func (m MultiObserver) OnStart(ctx context.Context, step models.ChatStepName) {
	for _, o := range m {
		if o != nil {
			o.OnStart(ctx, step)
		}
	}
}

func (m MultiObserver) OnEnd(ctx context.Context, step models.ChatStepName) {
	for _, o := range m {
		if o != nil {
			o.OnEnd(ctx, step)
		}
	}
}

func (m MultiObserver) OnError(ctx context.Context, step models.ChatStepName, message string) {
	for _, o := range m {
		if o != nil {
			o.OnError(ctx, step, message)
		}
	}
}
