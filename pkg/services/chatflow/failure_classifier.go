package chatflow

import (
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// errorRule maps a driver message pattern to an error type. The first
// submatch, when present, is the offending identifier.
type errorRule struct {
	pattern   *regexp.Regexp
	errorType models.QueryErrorType
}

// Rules are ordered most specific first; PostgreSQL, MySQL, SQL Server and
// the generator's own messages share one table.
var errorRules = []errorRule{
	// Generator whitelist check
	{regexp.MustCompile(`(?i)outside the whitelist: ([\w.]+(?:, [\w.]+)*)`), models.QueryErrorUnknownColumn},

	// PostgreSQL
	{regexp.MustCompile(`(?i)column "?([\w.]+)"? does not exist`), models.QueryErrorUnknownColumn},
	{regexp.MustCompile(`(?i)relation "?([\w.]+)"? does not exist`), models.QueryErrorUnknownTable},
	{regexp.MustCompile(`(?i)missing FROM-clause entry for table "?(\w+)"?`), models.QueryErrorUnknownTable},

	// MySQL
	{regexp.MustCompile("(?i)unknown column '([^']+)'"), models.QueryErrorUnknownColumn},
	{regexp.MustCompile("(?i)table '([^']+)' doesn't exist"), models.QueryErrorUnknownTable},

	// SQL Server
	{regexp.MustCompile("(?i)invalid column name '([^']+)'"), models.QueryErrorUnknownColumn},
	{regexp.MustCompile(`(?i)the multi-part identifier "([^"]+)" could not be bound`), models.QueryErrorUnknownColumn},
	{regexp.MustCompile("(?i)invalid object name '([^']+)'"), models.QueryErrorObjectNotFound},

	// Generic
	{regexp.MustCompile(`(?i)no such column: ([\w.]+)`), models.QueryErrorUnknownColumn},
	{regexp.MustCompile(`(?i)no such table: ([\w.]+)`), models.QueryErrorUnknownTable},
	{regexp.MustCompile(`(?i)function ([\w.]+)(?:\([^)]*\))? does not exist`), models.QueryErrorObjectNotFound},
	{regexp.MustCompile(`(?i)syntax error|error in your SQL syntax|incorrect syntax near`), models.QueryErrorSyntax},
}

// failureClass is the classified failure of a validation.
type failureClass struct {
	errorType   models.QueryErrorType
	identifiers []string
}

// classifyError matches driver error text against the rule table.
// Unmatched text is an execution_error.
func classifyError(text string) failureClass {
	for _, rule := range errorRules {
		m := rule.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		class := failureClass{errorType: rule.errorType}
		if len(m) > 1 {
			for _, ident := range strings.Split(m[1], ",") {
				if ident = strings.TrimSpace(ident); ident != "" {
					class.identifiers = append(class.identifiers, ident)
				}
			}
		}
		return class
	}
	return failureClass{errorType: models.QueryErrorExecution}
}

// lastSegment strips schema or database qualifiers: "edu_admin.students" -> "students".
func lastSegment(ident string) string {
	if i := strings.LastIndexByte(ident, '.'); i >= 0 {
		return ident[i+1:]
	}
	return ident
}
