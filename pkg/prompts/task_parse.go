package prompts

import (
	"encoding/json"
	"strings"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/knowledge"
)

// TaskParseSystemMessage returns the system message for task parsing.
func TaskParseSystemMessage() string {
	return `You are the task parser of an academic administration assistant. Turn a user question into a structured query task that a later step compiles into SQL.

Every field you output must be written as table.field and must come from the field whitelist you are given. Never invent fields: leaving a filter out is better than filling in a wrong field.

Respond with a single JSON object and nothing else.`
}

// BuildTaskParsePrompt creates the user prompt for task parsing.
func BuildTaskParsePrompt(query string, whitelist []string, aliasPairs []knowledge.AliasPair) string {
	var sb strings.Builder

	sb.WriteString("# Question\n\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("# Field Whitelist\n\n")
	writeJSONBlock(&sb, whitelist)

	sb.WriteString("# Alias Hints\n\n")
	sb.WriteString("Each entry lists the words users may use for one field. Map user words to an alias, then to its field, and output only the field name.\n")
	sb.WriteString("When a word maps to several fields, choose the one closest to the meaning of this question.\n\n")
	writeJSONBlock(&sb, aliasHintObjects(aliasPairs))

	sb.WriteString("# Rules\n\n")
	sb.WriteString("1. `intent` is \"business_query\"; if the question is small talk use \"chat\" and leave the other fields empty\n")
	sb.WriteString("2. `entities` are the concrete things the question names, as {type, value}\n")
	sb.WriteString("3. `dimensions` are the fields to group or list by; `metrics` are the measures asked for (e.g. \"count\", \"avg score\")\n")
	sb.WriteString("4. `filters[].op` is one of =, !=, >, <, >=, <=, like, in, not in, between\n")
	sb.WriteString("5. `filters[].value` is a string, number, boolean or null; `in` and `not in` take an array; `between` takes an array of two values\n")
	sb.WriteString("6. `time_range` is always present: {\"start\": \"YYYY-MM-DD\" or null, \"end\": \"YYYY-MM-DD\" or null}\n")
	sb.WriteString("7. `operation` is one of detail, aggregate, ranking, trend\n")
	sb.WriteString("8. `confidence` is a number between 0 and 1\n\n")

	sb.WriteString("# Response Format\n\n")
	sb.WriteString("```json\n")
	sb.WriteString(`{
  "intent": "business_query",
  "entities": [
    {"type": "grade", "value": "2022"},
    {"type": "major", "value": "Software Engineering"},
    {"type": "gender", "value": "male"}
  ],
  "dimensions": ["major.major_name"],
  "metrics": ["count"],
  "filters": [
    {"field": "student.enroll_year", "op": "=", "value": 2022},
    {"field": "student.gender", "op": "=", "value": "男"},
    {"field": "major.major_name", "op": "=", "value": "软件工程"}
  ],
  "time_range": {"start": null, "end": null},
  "operation": "aggregate",
  "confidence": 0.92
}
`)
	sb.WriteString("```\n\n")
	sb.WriteString("Return ONLY the JSON, no additional text.\n")

	return sb.String()
}

// aliasHintObjects renders alias pairs as [{"table.field": [aliases...]}].
func aliasHintObjects(pairs []knowledge.AliasPair) []map[string][]string {
	out := make([]map[string][]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, map[string][]string{p.Field: p.Aliases})
	}
	return out
}

// writeJSONBlock writes v as an indented JSON code block. Values passed here
// are plain slices and maps, so marshaling cannot fail.
func writeJSONBlock(sb *strings.Builder, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	sb.WriteString("```json\n")
	sb.Write(data)
	sb.WriteString("\n```\n\n")
}
