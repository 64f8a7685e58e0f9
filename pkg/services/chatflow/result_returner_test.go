package chatflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/llm"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/prompts"
)

func populatedState() *models.ConversationState {
	s := businessState()
	s.Validation = &models.SQLValidateResult{IsValid: true, Rows: 2}
	return s
}

func TestResultReturner_UsesModelSummary(t *testing.T) {
	client := llm.NewMockClient(`{"summary": "Two students are in CS-1."}`)
	returner := NewResultReturner(client, 0, zap.NewNop())
	state := populatedState()

	out, err := returner.Execute(context.Background(), state)
	require.NoError(t, err)

	result, ok := out.(*models.ResultReturnResult)
	require.True(t, ok)
	assert.Equal(t, "Two students are in CS-1.", result.Summary)
	assert.Equal(t, "Two students are in CS-1.", state.Summary)

	require.Len(t, client.Requests, 1)
	req := client.Requests[0]
	assert.Equal(t, prompts.ResultSummarySystemMessage(), req.System)
	assert.Contains(t, req.Prompt, `"final_status": "success"`)
	assert.Equal(t, "test-model", req.Model)
}

func TestResultReturner_TruncatesSummary(t *testing.T) {
	long := strings.Repeat("学", 200)
	client := llm.NewMockClient(`{"summary": "` + long + `"}`)
	returner := NewResultReturner(client, 0, zap.NewNop())

	out, err := returner.Execute(context.Background(), populatedState())
	require.NoError(t, err)

	result := out.(*models.ResultReturnResult)
	assert.Equal(t, prompts.MaxSummaryRunes, utf8.RuneCountInString(result.Summary))
}

func TestResultReturner_SummaryFailureIsIgnored(t *testing.T) {
	client := &llm.MockClient{
		CompleteFunc: func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			return nil, errors.New("rate limited")
		},
	}
	returner := NewResultReturner(client, 0, zap.NewNop())
	state := populatedState()

	out, err := returner.Execute(context.Background(), state)
	require.NoError(t, err)

	result := out.(*models.ResultReturnResult)
	assert.Equal(t, "Found 2 matching records.", result.Summary)
	assert.Empty(t, state.Summary)
}

func TestResultReturner_SkipsSummaryForChat(t *testing.T) {
	client := llm.NewMockClient(`{"summary": "unused"}`)
	returner := NewResultReturner(client, 0, zap.NewNop())
	state := newTestState("hello")
	state.Intent = &models.IntentResult{Intent: models.IntentChat, MergedQuery: "hello"}

	out, err := returner.Execute(context.Background(), state)
	require.NoError(t, err)

	result := out.(*models.ResultReturnResult)
	assert.True(t, result.Skipped)
	assert.Equal(t, 0, client.Calls())
}

func TestResultReturner_NilClient(t *testing.T) {
	returner := NewResultReturner(nil, 0, zap.NewNop())

	out, err := returner.Execute(context.Background(), populatedState())
	require.NoError(t, err)
	assert.Equal(t, models.FinalStatusSuccess, out.(*models.ResultReturnResult).FinalStatus)
}
