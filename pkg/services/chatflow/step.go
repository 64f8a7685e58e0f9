// Package chatflow implements the chat query workflow: six steps over a
// turn-scoped ConversationState, driven by a Router through a fixed edge
// table with one bounded retry loop.
package chatflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// StepExecutor is one step of the workflow.
type StepExecutor interface {
	// Name returns the step name used for routing and audit.
	Name() models.ChatStepName

	// Input returns the JSON-serializable projection of state the step reads.
	Input(state *models.ConversationState) any

	// Execute runs the step and, on success, writes its result slot.
	// The returned value is the slot content, recorded in the audit trail.
	// An error leaves the slot untouched.
	Execute(ctx context.Context, state *models.ConversationState) (any, error)
}

// baseStep provides the name and logger every step carries.
type baseStep struct {
	name   models.ChatStepName
	logger *zap.Logger
}

func newBaseStep(name models.ChatStepName, logger *zap.Logger) baseStep {
	return baseStep{name: name, logger: logger.Named(string(name))}
}

// Name returns the step name.
func (b baseStep) Name() models.ChatStepName {
	return b.name
}
