package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatStepNames(t *testing.T) {
	for i, name := range ValidChatStepNames {
		assert.True(t, IsValidChatStepName(name), name)
		assert.Equal(t, i+1, ChatStepOrder[name])
	}
	assert.False(t, IsValidChatStepName(ChatStepEnd))
	assert.False(t, IsValidChatStepName("unknown"))
}

func TestReasonCodes(t *testing.T) {
	assert.Len(t, ValidReasonCodes, 6)
	assert.True(t, IsValidReasonCode(ReasonSQLInvalidAfterRetry))
	assert.False(t, IsValidReasonCode("timeout"))
}

func TestQueryErrorType_NeedsCandidates(t *testing.T) {
	assert.True(t, QueryErrorUnknownColumn.NeedsCandidates())
	assert.True(t, QueryErrorUnknownTable.NeedsCandidates())
	assert.True(t, QueryErrorObjectNotFound.NeedsCandidates())
	assert.False(t, QueryErrorSyntax.NeedsCandidates())
	assert.False(t, QueryErrorExecution.NeedsCandidates())
}

func TestSQLValidateResult_NeedsDiagnosis(t *testing.T) {
	var missing *SQLValidateResult
	assert.False(t, missing.NeedsDiagnosis())
	assert.True(t, NewInvalidValidation("boom", "SELECT 1").NeedsDiagnosis())
	assert.True(t, (&SQLValidateResult{IsValid: true, EmptyResult: true}).NeedsDiagnosis())
	assert.True(t, (&SQLValidateResult{IsValid: true, Rows: 1, ZeroMetricResult: true}).NeedsDiagnosis())
	assert.False(t, (&SQLValidateResult{IsValid: true, Rows: 3}).NeedsDiagnosis())
}

func TestConversationState_RewrittenQuery(t *testing.T) {
	s := &ConversationState{Message: "raw"}
	assert.Equal(t, "raw", s.RewrittenQuery())

	s.Intent = &IntentResult{MergedQuery: "merged"}
	assert.Equal(t, "merged", s.RewrittenQuery())

	s.Intent.RewrittenQuery = "rewritten"
	assert.Equal(t, "rewritten", s.RewrittenQuery())
}

func TestConversationState_RetriesExhausted(t *testing.T) {
	s := &ConversationState{RetryBound: 1}
	assert.False(t, s.RetriesExhausted())
	s.RetryCount = 1
	assert.True(t, s.RetriesExhausted())
}
