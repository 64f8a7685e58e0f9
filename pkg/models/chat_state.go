package models

// IntentResult is the output of intent recognition.
type IntentResult struct {
	Intent         Intent  `json:"intent"`
	IsFollowup     bool    `json:"is_followup"`
	Confidence     float64 `json:"confidence"`
	MergedQuery    string  `json:"merged_query"`
	RewrittenQuery string  `json:"rewritten_query"`
	Threshold      float64 `json:"threshold"`
}

// Entity is a typed name/value pair recognized in a business query.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// FilterOperator is a comparison allowed in a parsed filter.
type FilterOperator string

const (
	FilterOpEq      FilterOperator = "="
	FilterOpNe      FilterOperator = "!="
	FilterOpGt      FilterOperator = ">"
	FilterOpLt      FilterOperator = "<"
	FilterOpGte     FilterOperator = ">="
	FilterOpLte     FilterOperator = "<="
	FilterOpLike    FilterOperator = "like"
	FilterOpIn      FilterOperator = "in"
	FilterOpNotIn   FilterOperator = "not in"
	FilterOpBetween FilterOperator = "between"
)

// ValidFilterOperators contains all allowed filter operators.
var ValidFilterOperators = []FilterOperator{
	FilterOpEq, FilterOpNe, FilterOpGt, FilterOpLt, FilterOpGte,
	FilterOpLte, FilterOpLike, FilterOpIn, FilterOpNotIn, FilterOpBetween,
}

// IsValidFilterOperator checks if the given operator is allowed.
func IsValidFilterOperator(op FilterOperator) bool {
	for _, v := range ValidFilterOperators {
		if v == op {
			return true
		}
	}
	return false
}

// Filter restricts a business query on one whitelisted "table.field".
type Filter struct {
	Field string         `json:"field"`
	Op    FilterOperator `json:"op"`
	Value FilterValue    `json:"value"`
}

// TimeRange bounds a business query in time. Either end may be open.
type TimeRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// ParseResult is the structured specification produced by task parsing.
type ParseResult struct {
	Intent     Intent         `json:"intent"`
	Entities   []Entity       `json:"entities"`
	Dimensions []string       `json:"dimensions"`
	Metrics    []string       `json:"metrics"`
	Filters    []Filter       `json:"filters"`
	TimeRange  TimeRange      `json:"time_range"`
	Operation  QueryOperation `json:"operation"`
	Confidence float64        `json:"confidence"`
}

// EntityMapping records which schema field a parsed entity was resolved to.
type EntityMapping struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FieldSubstitution is a field replacement applied on a retry pass.
type FieldSubstitution struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GenerationKind discriminates SQLGenerationResult.
type GenerationKind string

const (
	GenerationSuccess GenerationKind = "success"
	GenerationFailure GenerationKind = "failure"
)

// SQLGenerationResult is a tagged union: check Kind before reading variant fields.
// A Failure always has empty SQL, mappings and fields.
type SQLGenerationResult struct {
	Kind                 GenerationKind      `json:"kind"`
	SQL                  string              `json:"sql"`
	EntityMappings       []EntityMapping     `json:"entity_mappings"`
	SQLFields            []string            `json:"sql_fields"`
	AppliedSubstitutions []FieldSubstitution `json:"applied_substitutions,omitempty"`
	GenerationFailed     bool                `json:"generation_failed"`
	Error                string              `json:"error,omitempty"`
}

// NewGenerationSuccess builds the Success variant.
func NewGenerationSuccess(sql string, mappings []EntityMapping, fields []string, subs []FieldSubstitution) *SQLGenerationResult {
	if mappings == nil {
		mappings = []EntityMapping{}
	}
	if fields == nil {
		fields = []string{}
	}
	return &SQLGenerationResult{
		Kind:                 GenerationSuccess,
		SQL:                  sql,
		EntityMappings:       mappings,
		SQLFields:            fields,
		AppliedSubstitutions: subs,
	}
}

// NewGenerationFailure builds the Failure variant.
func NewGenerationFailure(errMsg string) *SQLGenerationResult {
	return &SQLGenerationResult{
		Kind:             GenerationFailure,
		EntityMappings:   []EntityMapping{},
		SQLFields:        []string{},
		GenerationFailed: true,
		Error:            errMsg,
	}
}

// IsSuccess reports whether this is the Success variant.
func (r *SQLGenerationResult) IsSuccess() bool {
	return r != nil && r.Kind == GenerationSuccess
}

// SQLValidateResult is the outcome of executing a generated query.
// When IsValid is false, Rows is 0 and Result is empty.
type SQLValidateResult struct {
	IsValid          bool             `json:"is_valid"`
	Error            *string          `json:"error"`
	Rows             int              `json:"rows"`
	Columns          []string         `json:"columns"`
	Result           []map[string]any `json:"result"`
	ExecutedSQL      string           `json:"executed_sql"`
	EmptyResult      bool             `json:"empty_result"`
	ZeroMetricResult bool             `json:"zero_metric_result"`
}

// NewInvalidValidation returns the canonical invalid result.
func NewInvalidValidation(errMsg, executedSQL string) *SQLValidateResult {
	return &SQLValidateResult{
		IsValid:     false,
		Error:       &errMsg,
		Columns:     []string{},
		Result:      []map[string]any{},
		ExecutedSQL: executedSQL,
	}
}

// NeedsDiagnosis reports whether the result should be sent to the failure resolver.
func (r *SQLValidateResult) NeedsDiagnosis() bool {
	if r == nil {
		return false
	}
	return !r.IsValid || r.EmptyResult || r.ZeroMetricResult
}

// FieldCandidates lists plausible replacements for a field the data store rejected.
type FieldCandidates struct {
	Missing    string   `json:"missing"`
	Candidates []string `json:"candidates"`
}

// ProbeSample holds the distinct values sampled for one field.
type ProbeSample struct {
	Field    string   `json:"field"`
	ProbeSQL string   `json:"probe_sql"`
	Values   []string `json:"values"`
	Error    *string  `json:"error,omitempty"`
}

// KnowledgeSummary describes the size of the schema knowledge base.
type KnowledgeSummary struct {
	TableCount int `json:"table_count"`
	FieldCount int `json:"field_count"`
}

// HiddenContextResult is the failure diagnosis handed to the next generation attempt.
type HiddenContextResult struct {
	ErrorType       QueryErrorType    `json:"error_type"`
	Error           string            `json:"error"`
	FailedSQL       string            `json:"failed_sql"`
	RewrittenQuery  string            `json:"rewritten_query"`
	FieldCandidates []FieldCandidates `json:"field_candidates"`
	ProbeSamples    []ProbeSample     `json:"probe_samples"`
	Hints           []string          `json:"hints"`
	KBSummary       KnowledgeSummary  `json:"kb_summary"`
	RetryCount      int               `json:"retry_count"`
}

// ConversationState is the turn-scoped record threaded through every step.
// One Router run owns it exclusively; it is never shared between turns.
type ConversationState struct {
	SessionID  string   `json:"session_id"`
	CallerID   string   `json:"caller_id"`
	Message    string   `json:"message"`
	History    []string `json:"history_user_messages"`
	Threshold  float64  `json:"threshold"`
	ModelName  string   `json:"model_name"`
	SQLModel   string   `json:"sql_model_name"`
	RetryBound int      `json:"retry_bound"`
	RetryCount int      `json:"hidden_context_retry_count"`

	Intent        *IntentResult        `json:"intent_result"`
	Parse         *ParseResult         `json:"parse_result"`
	Generation    *SQLGenerationResult `json:"sql_result"`
	Validation    *SQLValidateResult   `json:"sql_validate_result"`
	HiddenContext *HiddenContextResult `json:"hidden_context_result"`

	// Summary is an optional model-written summary set during result_return.
	Summary string `json:"summary,omitempty"`
}

// RewrittenQuery returns the query text downstream steps should work from.
func (s *ConversationState) RewrittenQuery() string {
	if s.Intent != nil {
		if s.Intent.RewrittenQuery != "" {
			return s.Intent.RewrittenQuery
		}
		if s.Intent.MergedQuery != "" {
			return s.Intent.MergedQuery
		}
	}
	return s.Message
}

// RetriesExhausted reports whether the failure resolver may not be entered again.
func (s *ConversationState) RetriesExhausted() bool {
	return s.RetryCount >= s.RetryBound
}

// ResultReturnResult is the terminal, user-facing result of a turn.
type ResultReturnResult struct {
	SessionID               string               `json:"session_id"`
	Intent                  Intent               `json:"intent"`
	IsFollowup              bool                 `json:"is_followup"`
	MergedQuery             string               `json:"merged_query"`
	RewrittenQuery          string               `json:"rewritten_query"`
	Skipped                 bool                 `json:"skipped"`
	SkipReason              *string              `json:"reason"`
	FinalStatus             FinalStatus          `json:"final_status"`
	ReasonCode              *ReasonCode          `json:"reason_code"`
	Summary                 string               `json:"summary"`
	Reply                   string               `json:"reply"`
	DownloadRef             *string              `json:"download_ref"`
	Task                    *ParseResult         `json:"task"`
	SQLResult               *SQLGenerationResult `json:"sql_result"`
	SQLValidateResult       *SQLValidateResult   `json:"sql_validate_result"`
	HiddenContextResult     *HiddenContextResult `json:"hidden_context_result"`
	HiddenContextRetryCount int                  `json:"hidden_context_retry_count"`
}
