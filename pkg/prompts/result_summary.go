package prompts

import (
	"strings"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// MaxSummaryRunes bounds the model-written result summary.
const MaxSummaryRunes = 120

// ResultSummaryInput is the terminal state of a turn as shown to the summarizer.
type ResultSummaryInput struct {
	UserQuery      string                    `json:"user_query"`
	RewrittenQuery string                    `json:"rewritten_query"`
	FinalStatus    models.FinalStatus        `json:"final_status"`
	ReasonCode     *models.ReasonCode        `json:"reason_code"`
	Task           *models.ParseResult       `json:"task"`
	Validation     *models.SQLValidateResult `json:"sql_validate_result"`
	RetryCount     int                       `json:"hidden_context_retry_count"`
}

// ResultSummarySystemMessage returns the system message for result summarization.
func ResultSummarySystemMessage() string {
	return `You summarize query results for staff of an academic administration office. Describe only what the input shows; never invent data.

Respond with a single JSON object and nothing else.`
}

// BuildResultSummaryPrompt creates the user prompt for result summarization.
func BuildResultSummaryPrompt(in ResultSummaryInput) string {
	var sb strings.Builder

	sb.WriteString("# Turn Result\n\n")
	writeJSONBlock(&sb, in)

	sb.WriteString("# Rules\n\n")
	sb.WriteString("1. `summary` is at most 120 characters, in the language of `user_query`\n")
	sb.WriteString("2. When `final_status` is success, answer the question directly\n")
	sb.WriteString("3. When it is partial_success or failed, explain what `reason_code` means for the user and suggest one next step\n\n")

	sb.WriteString("# Response Format\n\n")
	sb.WriteString("```json\n{\"summary\": \"...\"}\n```\n\n")
	sb.WriteString("Return ONLY the JSON, no additional text.\n")

	return sb.String()
}
