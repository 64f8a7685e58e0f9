package chatflow

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

const chatSkipReason = "message classified as chat, no query was run"

// outcomeText is the deterministic summary and reply for one outcome.
type outcomeText struct {
	summary string
	reply   string
}

var outcomeTexts = map[models.ReasonCode]outcomeText{
	models.ReasonIntentIsChat: {
		summary: "Conversational message, no data query was needed.",
		reply:   "Hello! Ask me a question about students, classes, majors or colleges and I will look it up.",
	},
	models.ReasonTaskParseMissing: {
		summary: "The request could not be turned into a structured query.",
		reply:   "I could not work out which data you need. Please rephrase the question and name the records or fields you are interested in.",
	},
	models.ReasonSQLValidateMissing: {
		summary: "No query result is available for this request.",
		reply:   "I understood the question but could not produce a query for it. Please try rephrasing it.",
	},
	models.ReasonEmptyResultAfterRetry: {
		summary: "The query ran but found no matching records, even after a correction.",
		reply:   "No records match your question. Check the names and values you used, or widen the conditions.",
	},
	models.ReasonZeroMetricAfterRetry: {
		summary: "The query ran but every requested figure came back zero or empty, even after a correction.",
		reply:   "The figures you asked for are all zero or empty. Check the time range and conditions of your question.",
	},
	models.ReasonSQLInvalidAfterRetry: {
		summary: "The generated query could not be executed, even after a correction.",
		reply:   "I could not build a working query for this question. Please rephrase it or narrow it down.",
	},
}

// FinalizeResult maps a terminal state to the user-facing result. It reads
// state only and returns the same result for the same state.
func FinalizeResult(state *models.ConversationState) *models.ResultReturnResult {
	result := &models.ResultReturnResult{
		SessionID:               state.SessionID,
		MergedQuery:             state.Message,
		RewrittenQuery:          state.RewrittenQuery(),
		Task:                    state.Parse,
		SQLResult:               state.Generation,
		SQLValidateResult:       state.Validation,
		HiddenContextResult:     state.HiddenContext,
		HiddenContextRetryCount: state.RetryCount,
	}
	if state.Intent != nil {
		result.Intent = state.Intent.Intent
		result.IsFollowup = state.Intent.IsFollowup
		if state.Intent.MergedQuery != "" {
			result.MergedQuery = state.Intent.MergedQuery
		}
	}

	status, reason := decideOutcome(state)
	result.FinalStatus = status
	result.ReasonCode = reason

	var text outcomeText
	if reason != nil {
		text = outcomeTexts[*reason]
		if *reason == models.ReasonIntentIsChat {
			result.Skipped = true
			skip := chatSkipReason
			result.SkipReason = &skip
		}
	} else {
		text = successText(state.Validation)
	}

	result.Summary = text.summary
	result.Reply = text.reply
	if state.Summary != "" && !result.Skipped {
		result.Summary = state.Summary
		result.Reply = state.Summary
	}
	return result
}

// decideOutcome applies the decision table; the first matching rule wins.
func decideOutcome(state *models.ConversationState) (models.FinalStatus, *models.ReasonCode) {
	code := func(c models.ReasonCode) *models.ReasonCode { return &c }

	v := state.Validation
	switch {
	case state.Intent != nil && state.Intent.Intent == models.IntentChat:
		return models.FinalStatusSuccess, code(models.ReasonIntentIsChat)
	case state.Parse == nil:
		return models.FinalStatusFailed, code(models.ReasonTaskParseMissing)
	case v == nil:
		return models.FinalStatusFailed, code(models.ReasonSQLValidateMissing)
	case v.IsValid && !v.EmptyResult && !v.ZeroMetricResult:
		return models.FinalStatusSuccess, nil
	case v.IsValid && v.EmptyResult:
		return models.FinalStatusPartialSuccess, code(models.ReasonEmptyResultAfterRetry)
	case v.IsValid && v.ZeroMetricResult:
		return models.FinalStatusPartialSuccess, code(models.ReasonZeroMetricAfterRetry)
	default:
		return models.FinalStatusFailed, code(models.ReasonSQLInvalidAfterRetry)
	}
}

func successText(v *models.SQLValidateResult) outcomeText {
	noun := "records"
	if v.Rows == 1 {
		noun = "record"
	}
	return outcomeText{
		summary: fmt.Sprintf("Found %d matching %s.", v.Rows, noun),
		reply:   fmt.Sprintf("Here is what I found: %d %s. The preview below shows the details.", v.Rows, noun),
	}
}
