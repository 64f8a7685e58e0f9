// Package prompts builds the system messages and user prompts sent to the
// language model by each step of the chat workflow.
package prompts

import (
	"fmt"
	"strings"
)

// IntentSystemMessage returns the system message for intent recognition.
func IntentSystemMessage() string {
	return `You are the intent classifier of an academic administration assistant. Users are staff who ask about colleges, majors, classes, students, teachers, courses, enrollments, scores and attendance.

Decide whether the latest message is small talk ("chat") or a question that must be answered from the database ("business_query"). When the message continues an earlier question (for example "and the girls?" after "how many boys are in software engineering"), treat it as a follow-up and merge it with the earlier messages into one standalone question.

Respond with a single JSON object and nothing else.`
}

// BuildIntentPrompt creates the user prompt for intent recognition.
// history holds earlier user messages of the session, oldest first.
func BuildIntentPrompt(message string, history []string) string {
	var sb strings.Builder

	if len(history) > 0 {
		sb.WriteString("# Earlier Messages (oldest first)\n\n")
		for i, h := range history {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, h))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("# Latest Message\n\n")
	sb.WriteString(message)
	sb.WriteString("\n\n")

	sb.WriteString("# Rules\n\n")
	sb.WriteString("1. `intent` is exactly \"chat\" or \"business_query\"\n")
	sb.WriteString("2. `is_followup` is true only when the latest message depends on an earlier one\n")
	sb.WriteString("3. `merged_query` is the latest message merged with the earlier messages it depends on; when it is not a follow-up, repeat the latest message\n")
	sb.WriteString("4. `rewritten_query` restates `merged_query` as one precise, standalone question\n")
	sb.WriteString("5. `confidence` is a number between 0 and 1\n")
	sb.WriteString("6. Keep the user's language in `merged_query` and `rewritten_query`\n\n")

	sb.WriteString("# Response Format\n\n")
	sb.WriteString("```json\n")
	sb.WriteString(`{
  "intent": "business_query",
  "is_followup": true,
  "confidence": 0.93,
  "merged_query": "How many students of the 2022 software engineering cohort are female?",
  "rewritten_query": "Count female students enrolled in 2022 in the Software Engineering major"
}
`)
	sb.WriteString("```\n\n")
	sb.WriteString("Return ONLY the JSON, no additional text.\n")

	return sb.String()
}
