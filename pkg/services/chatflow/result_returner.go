package chatflow

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/llm"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/prompts"
)

// ResultReturner is the result_return step. It optionally asks a model for a
// short summary, then finalizes. It never fails.
type ResultReturner struct {
	baseStep
	llm     llm.Client
	timeout time.Duration
}

var _ StepExecutor = (*ResultReturner)(nil)

// NewResultReturner creates the result_return step. A nil client disables
// the model summary.
func NewResultReturner(client llm.Client, timeout time.Duration, logger *zap.Logger) *ResultReturner {
	return &ResultReturner{
		baseStep: newBaseStep(models.ChatStepResultReturn, logger),
		llm:      client,
		timeout:  timeout,
	}
}

type resultReturnInput struct {
	Message        string                    `json:"message"`
	RewrittenQuery string                    `json:"rewritten_query"`
	Intent         *models.IntentResult      `json:"intent_result"`
	HasParse       bool                      `json:"has_parse_result"`
	HasGeneration  bool                      `json:"has_sql_result"`
	Validation     *models.SQLValidateResult `json:"sql_validate_result"`
	RetryCount     int                       `json:"hidden_context_retry_count"`
}

func (r *ResultReturner) Input(state *models.ConversationState) any {
	return resultReturnInput{
		Message:        state.Message,
		RewrittenQuery: state.RewrittenQuery(),
		Intent:         state.Intent,
		HasParse:       state.Parse != nil,
		HasGeneration:  state.Generation != nil,
		Validation:     state.Validation,
		RetryCount:     state.RetryCount,
	}
}

func (r *ResultReturner) Execute(ctx context.Context, state *models.ConversationState) (any, error) {
	draft := FinalizeResult(state)
	if r.llm == nil || draft.Skipped {
		return draft, nil
	}

	summary, err := r.summarize(ctx, state, draft)
	if err != nil {
		r.logger.Warn("Result summary failed, using template summary",
			zap.String("session_id", state.SessionID),
			zap.Error(err))
		return draft, nil
	}
	state.Summary = summary
	return FinalizeResult(state), nil
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

func (r *ResultReturner) summarize(ctx context.Context, state *models.ConversationState, draft *models.ResultReturnResult) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.llm.Complete(ctx, llm.Request{
		System: prompts.ResultSummarySystemMessage(),
		Prompt: prompts.BuildResultSummaryPrompt(prompts.ResultSummaryInput{
			UserQuery:      state.Message,
			RewrittenQuery: draft.RewrittenQuery,
			FinalStatus:    draft.FinalStatus,
			ReasonCode:     draft.ReasonCode,
			Task:           state.Parse,
			Validation:     state.Validation,
			RetryCount:     state.RetryCount,
		}),
		Model:    state.ModelName,
		JSONMode: true,
	})
	if err != nil {
		return "", err
	}

	parsed, err := llm.ParseJSONResponse[summaryResponse](resp.Content)
	if err != nil {
		return "", err
	}
	return truncateRunes(strings.TrimSpace(parsed.Summary), prompts.MaxSummaryRunes), nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
