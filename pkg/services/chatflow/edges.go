package chatflow

import "github.com/ekaya-inc/ekaya-chat-engine/pkg/models"

// Guard decides whether an edge may be taken. stepOK reports whether the
// step just executed produced its result.
type Guard func(state *models.ConversationState, stepOK bool) bool

// Edge is one transition of the workflow. For a given source step, edges
// are tried in table order and the first whose guard holds is taken.
type Edge struct {
	From  models.ChatStepName
	To    models.ChatStepName
	When  string
	Guard Guard
}

// Edges is the routing table of the chat workflow.
var Edges = []Edge{
	{models.ChatStepIntentRecognition, models.ChatStepTaskParse, "business_query", isBusinessQuery},
	{models.ChatStepIntentRecognition, models.ChatStepResultReturn, "chat, or recognition failure", always},
	{models.ChatStepTaskParse, models.ChatStepSQLGeneration, "task parsed", hasParse},
	{models.ChatStepTaskParse, models.ChatStepResultReturn, "parse failure", always},
	{models.ChatStepSQLGeneration, models.ChatStepSQLValidate, "always", always},
	{models.ChatStepSQLValidate, models.ChatStepHiddenContext, "invalid, empty or zero-metric, retries remain", needsDiagnosis},
	{models.ChatStepSQLValidate, models.ChatStepResultReturn, "valid and populated, or retries exhausted", always},
	{models.ChatStepHiddenContext, models.ChatStepSQLGeneration, "diagnosis succeeded, retries remain", canRetry},
	{models.ChatStepHiddenContext, models.ChatStepResultReturn, "diagnosis failed, or retries exhausted", always},
	{models.ChatStepResultReturn, models.ChatStepEnd, "always", always},
}

func always(*models.ConversationState, bool) bool { return true }

func isBusinessQuery(s *models.ConversationState, ok bool) bool {
	return ok && s.Intent != nil && s.Intent.Intent == models.IntentBusinessQuery
}

func hasParse(s *models.ConversationState, ok bool) bool {
	return ok && s.Parse != nil
}

func needsDiagnosis(s *models.ConversationState, ok bool) bool {
	return ok && s.Validation.NeedsDiagnosis() && !s.RetriesExhausted()
}

func canRetry(s *models.ConversationState, ok bool) bool {
	return ok && s.HiddenContext != nil && !s.RetriesExhausted()
}

// nextStep returns the destination of the first matching edge out of from.
// A step with no matching edge ends at result_return.
func nextStep(from models.ChatStepName, state *models.ConversationState, stepOK bool) models.ChatStepName {
	for _, e := range Edges {
		if e.From == from && e.Guard(state, stepOK) {
			return e.To
		}
	}
	return models.ChatStepResultReturn
}
