package models

// ============================================================================
// Workflow Steps
// ============================================================================

// ChatStepName identifies one step of the chat query workflow.
type ChatStepName string

const (
	ChatStepIntentRecognition ChatStepName = "intent_recognition"
	ChatStepTaskParse         ChatStepName = "task_parse"
	ChatStepSQLGeneration     ChatStepName = "sql_generation"
	ChatStepSQLValidate       ChatStepName = "sql_validate"
	ChatStepHiddenContext     ChatStepName = "hidden_context"
	ChatStepResultReturn      ChatStepName = "result_return"

	// ChatStepEnd is the terminal state. It is never executed.
	ChatStepEnd ChatStepName = "__end__"
)

// ChatStepOrder is the pipeline position of each executable step.
var ChatStepOrder = map[ChatStepName]int{
	ChatStepIntentRecognition: 1,
	ChatStepTaskParse:         2,
	ChatStepSQLGeneration:     3,
	ChatStepSQLValidate:       4,
	ChatStepHiddenContext:     5,
	ChatStepResultReturn:      6,
}

// ValidChatStepNames contains all executable step names in pipeline order.
var ValidChatStepNames = []ChatStepName{
	ChatStepIntentRecognition,
	ChatStepTaskParse,
	ChatStepSQLGeneration,
	ChatStepSQLValidate,
	ChatStepHiddenContext,
	ChatStepResultReturn,
}

// IsValidChatStepName checks if the given name is an executable step.
func IsValidChatStepName(s ChatStepName) bool {
	_, ok := ChatStepOrder[s]
	return ok
}

// ============================================================================
// Intent
// ============================================================================

// Intent classifies a chat message.
type Intent string

const (
	IntentChat          Intent = "chat"
	IntentBusinessQuery Intent = "business_query"
)

// IsValidIntent checks if the given intent is known.
func IsValidIntent(i Intent) bool {
	return i == IntentChat || i == IntentBusinessQuery
}

// ============================================================================
// Task Operation
// ============================================================================

// QueryOperation is the shape of data a business query asks for.
type QueryOperation string

const (
	QueryOperationDetail    QueryOperation = "detail"
	QueryOperationAggregate QueryOperation = "aggregate"
	QueryOperationRanking   QueryOperation = "ranking"
	QueryOperationTrend     QueryOperation = "trend"
)

// ValidQueryOperations contains all valid operations.
var ValidQueryOperations = []QueryOperation{
	QueryOperationDetail,
	QueryOperationAggregate,
	QueryOperationRanking,
	QueryOperationTrend,
}

// IsValidQueryOperation checks if the given operation is valid.
func IsValidQueryOperation(op QueryOperation) bool {
	for _, v := range ValidQueryOperations {
		if v == op {
			return true
		}
	}
	return false
}

// ============================================================================
// Failure Classification
// ============================================================================

// QueryErrorType classifies why a generated query failed or came back unusable.
type QueryErrorType string

const (
	QueryErrorExecution      QueryErrorType = "execution_error"
	QueryErrorUnknownColumn  QueryErrorType = "unknown_column"
	QueryErrorUnknownTable   QueryErrorType = "unknown_table"
	QueryErrorSyntax         QueryErrorType = "syntax_error"
	QueryErrorObjectNotFound QueryErrorType = "object_not_found"
)

// NeedsCandidates reports whether the error names a schema identifier that
// should be matched against the knowledge base.
func (t QueryErrorType) NeedsCandidates() bool {
	return t == QueryErrorUnknownColumn || t == QueryErrorUnknownTable || t == QueryErrorObjectNotFound
}

// ============================================================================
// Final Status and Reason Codes
// ============================================================================

// FinalStatus is the user-facing outcome of a turn.
type FinalStatus string

const (
	FinalStatusSuccess        FinalStatus = "success"
	FinalStatusPartialSuccess FinalStatus = "partial_success"
	FinalStatusFailed         FinalStatus = "failed"
)

// ReasonCode explains a non-default final status. The set is closed.
type ReasonCode string

const (
	ReasonIntentIsChat          ReasonCode = "intent_is_chat"
	ReasonTaskParseMissing      ReasonCode = "task_parse_missing"
	ReasonSQLValidateMissing    ReasonCode = "sql_validate_missing"
	ReasonEmptyResultAfterRetry ReasonCode = "empty_result_after_retry"
	ReasonZeroMetricAfterRetry  ReasonCode = "zero_metric_after_retry"
	ReasonSQLInvalidAfterRetry  ReasonCode = "sql_invalid_after_retry"
)

// ValidReasonCodes contains every reason code.
var ValidReasonCodes = []ReasonCode{
	ReasonIntentIsChat,
	ReasonTaskParseMissing,
	ReasonSQLValidateMissing,
	ReasonEmptyResultAfterRetry,
	ReasonZeroMetricAfterRetry,
	ReasonSQLInvalidAfterRetry,
}

// IsValidReasonCode checks if the given code belongs to the closed set.
func IsValidReasonCode(c ReasonCode) bool {
	for _, v := range ValidReasonCodes {
		if v == c {
			return true
		}
	}
	return false
}

// ============================================================================
// Step Status
// ============================================================================

// StepStatus is the outcome recorded for one step invocation.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
)
