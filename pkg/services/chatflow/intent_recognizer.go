package chatflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/llm"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/prompts"
)

// IntentRecognizer classifies a message as chat or business_query and
// resolves follow-ups against the session history.
type IntentRecognizer struct {
	baseStep
	llm     llm.Client
	timeout time.Duration
}

var _ StepExecutor = (*IntentRecognizer)(nil)

// NewIntentRecognizer creates the intent_recognition step.
func NewIntentRecognizer(client llm.Client, timeout time.Duration, logger *zap.Logger) *IntentRecognizer {
	return &IntentRecognizer{
		baseStep: newBaseStep(models.ChatStepIntentRecognition, logger),
		llm:      client,
		timeout:  timeout,
	}
}

type intentInput struct {
	Message   string   `json:"message"`
	History   []string `json:"history_user_messages"`
	Threshold float64  `json:"threshold"`
	ModelName string   `json:"model_name"`
}

func (r *IntentRecognizer) Input(state *models.ConversationState) any {
	return intentInput{
		Message:   state.Message,
		History:   state.History,
		Threshold: state.Threshold,
		ModelName: state.ModelName,
	}
}

func (r *IntentRecognizer) Execute(ctx context.Context, state *models.ConversationState) (any, error) {
	result, err := r.Recognize(ctx, state.Message, state.History, state.Threshold, state.ModelName)
	if err != nil {
		return nil, err
	}
	state.Intent = result
	return result, nil
}

// intentResponse is the raw model output; fields are decoded leniently.
type intentResponse struct {
	Intent         json.RawMessage `json:"intent"`
	IsFollowup     json.RawMessage `json:"is_followup"`
	Confidence     json.RawMessage `json:"confidence"`
	MergedQuery    json.RawMessage `json:"merged_query"`
	RewrittenQuery json.RawMessage `json:"rewritten_query"`
}

// Recognize calls the model once. Below-threshold confidence demotes the
// intent to chat; it never promotes.
func (r *IntentRecognizer) Recognize(ctx context.Context, message string, history []string, threshold float64, model string) (*models.IntentResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.llm.Complete(ctx, llm.Request{
		System:   prompts.IntentSystemMessage(),
		Prompt:   prompts.BuildIntentPrompt(message, history),
		Model:    model,
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("intent model call failed: %w", err)
	}

	raw, err := llm.ParseJSONResponse[intentResponse](resp.Content)
	if err != nil {
		return nil, err
	}

	intent := models.Intent(strings.ToLower(jsonutil.FlexibleString(raw.Intent)))
	if !models.IsValidIntent(intent) {
		return nil, fmt.Errorf("%w: intent %q is not allowed", apperrors.ErrInvalidModelOutput, intent)
	}

	confidence, ok := jsonutil.FlexibleFloat(raw.Confidence)
	if !ok {
		return nil, fmt.Errorf("%w: confidence is missing or not a number", apperrors.ErrInvalidModelOutput)
	}
	confidence = jsonutil.ClampUnit(confidence)

	merged := jsonutil.FlexibleString(raw.MergedQuery)
	if merged == "" {
		return nil, fmt.Errorf("%w: merged_query is empty", apperrors.ErrInvalidModelOutput)
	}
	rewritten := jsonutil.FlexibleString(raw.RewrittenQuery)
	if rewritten == "" {
		rewritten = merged
	}

	if confidence < threshold && intent != models.IntentChat {
		r.logger.Debug("Confidence below threshold, treating as chat",
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", threshold))
		intent = models.IntentChat
	}

	return &models.IntentResult{
		Intent:         intent,
		IsFollowup:     jsonutil.FlexibleBool(raw.IsFollowup),
		Confidence:     confidence,
		MergedQuery:    merged,
		RewrittenQuery: rewritten,
		Threshold:      threshold,
	}, nil
}
