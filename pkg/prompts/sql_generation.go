package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/knowledge"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// SQLGenerationInput is everything the query generation prompt is built from.
type SQLGenerationInput struct {
	RewrittenQuery string
	Task           *models.ParseResult
	Dialect        string
	Whitelist      []string
	AliasPairs     []knowledge.AliasPair
	SchemaHints    []knowledge.TableHint

	// HiddenContext is set on a retry pass and describes why the previous
	// query failed.
	HiddenContext *models.HiddenContextResult
}

// SQLGenerationSystemMessage returns the system message for query generation.
func SQLGenerationSystemMessage(dialect string) string {
	return fmt.Sprintf(`You are a SQL expert for an academic administration database (%s). You compile a structured query task into exactly one read-only SQL statement.

The statement must start with WITH (common table expressions) and must reference every physical column as table.field using only whitelisted fields. Never write INSERT, UPDATE, DELETE, DDL or more than one statement.

Respond with a single JSON object and nothing else.`, dialectDisplayName(dialect))
}

// BuildSQLGenerationPrompt creates the user prompt for query generation.
func BuildSQLGenerationPrompt(in SQLGenerationInput) string {
	var sb strings.Builder

	sb.WriteString("# Question\n\n")
	sb.WriteString(in.RewrittenQuery)
	sb.WriteString("\n\n")

	sb.WriteString("# Parsed Task\n\n")
	writeJSONBlock(&sb, in.Task)

	sb.WriteString("# Schema\n\n")
	for _, table := range in.SchemaHints {
		sb.WriteString(fmt.Sprintf("## %s\n", table.Table))
		if table.TableDescription != "" {
			sb.WriteString(table.TableDescription)
			sb.WriteString("\n")
		}
		for _, col := range table.Columns {
			line := fmt.Sprintf("- %s", col.Field)
			if col.Type != "" {
				line += fmt.Sprintf(" (%s)", col.Type)
			}
			if col.FieldDescription != "" {
				line += ": " + col.FieldDescription
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("# Field Whitelist\n\n")
	writeJSONBlock(&sb, in.Whitelist)

	sb.WriteString("# Alias Hints\n\n")
	writeJSONBlock(&sb, aliasHintObjects(in.AliasPairs))

	if in.HiddenContext != nil {
		writeHiddenContext(&sb, in.HiddenContext)
	}

	sb.WriteString("# Rules\n\n")
	sb.WriteString("1. Start the statement with WITH and finish with one SELECT over the CTEs\n")
	sb.WriteString("2. Qualify every physical column as table.field; CTE columns may be qualified with the CTE name\n")
	sb.WriteString("3. Rows with is_deleted = TRUE are deleted: exclude them\n")
	sb.WriteString("4. Give aggregate columns readable aliases\n")
	sb.WriteString("5. Every entity of the task needs an `entity_mappings` entry whose `field` appears in the SQL\n")
	sb.WriteString(fmt.Sprintf("6. Use %s syntax\n\n", dialectDisplayName(in.Dialect)))

	sb.WriteString("# Response Format\n\n")
	sb.WriteString("```json\n")
	sb.WriteString(`{
  "sql": "WITH s AS (SELECT student.id, student.major_id FROM student WHERE student.enroll_year = 2022 AND student.is_deleted = FALSE) SELECT major.major_name, COUNT(s.id) AS student_count FROM s JOIN major ON major.id = s.major_id GROUP BY major.major_name",
  "entity_mappings": [
    {"type": "grade", "value": "2022", "field": "student.enroll_year", "reason": "grade is the enrollment year"}
  ]
}
`)
	sb.WriteString("```\n\n")
	sb.WriteString("Return ONLY the JSON, no additional text.\n")

	return sb.String()
}

func writeHiddenContext(sb *strings.Builder, hc *models.HiddenContextResult) {
	sb.WriteString("# Previous Attempt Failed\n\n")
	sb.WriteString("The query below was rejected or returned nothing useful. Write a corrected query; do NOT repeat it.\n\n")
	sb.WriteString("```sql\n")
	sb.WriteString(hc.FailedSQL)
	sb.WriteString("\n```\n\n")
	sb.WriteString(fmt.Sprintf("- **Error type**: %s\n", hc.ErrorType))
	sb.WriteString(fmt.Sprintf("- **Error**: %s\n", hc.Error))
	if hc.RewrittenQuery != "" {
		sb.WriteString(fmt.Sprintf("- **Clarified question**: %s\n", hc.RewrittenQuery))
	}
	sb.WriteString("\n")

	if len(hc.FieldCandidates) > 0 {
		sb.WriteString("## Field Candidates\n\n")
		sb.WriteString("Replace each missing field with the best candidate:\n")
		for _, fc := range hc.FieldCandidates {
			sb.WriteString(fmt.Sprintf("- `%s` → %s\n", fc.Missing, strings.Join(fc.Candidates, ", ")))
		}
		sb.WriteString("\n")
	}

	if len(hc.ProbeSamples) > 0 {
		sb.WriteString("## Values Actually Stored\n\n")
		sb.WriteString("Filter values must match these stored values exactly:\n")
		for _, p := range hc.ProbeSamples {
			if p.Error != nil {
				sb.WriteString(fmt.Sprintf("- `%s`: (probe failed)\n", p.Field))
				continue
			}
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", p.Field, strings.Join(p.Values, ", ")))
		}
		sb.WriteString("\n")
	}

	if len(hc.Hints) > 0 {
		sb.WriteString("## Hints\n\n")
		for _, h := range hc.Hints {
			sb.WriteString(fmt.Sprintf("- %s\n", h))
		}
		sb.WriteString("\n")
	}
}

func dialectDisplayName(dialect string) string {
	switch dialect {
	case "postgres":
		return "PostgreSQL"
	case "mssql":
		return "Microsoft SQL Server"
	case "mysql":
		return "MySQL"
	default:
		return "ANSI SQL"
	}
}
