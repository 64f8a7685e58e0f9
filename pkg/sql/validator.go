// Package sql provides guards and light parsing for model-generated SQL.
package sql

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyQuery indicates no SQL text was produced.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrNotReadOnly indicates the statement could modify data or schema.
	ErrNotReadOnly = errors.New("only read-only SELECT statements are allowed")
	// ErrCTERequired indicates the query does not start with a WITH clause.
	ErrCTERequired = errors.New("query must be written as a WITH (common table expression) statement")
)

var (
	// Data-modifying CTEs: WITH d AS (DELETE FROM ...) SELECT * FROM d
	modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE|MERGE)\b`)

	// Clauses that write even inside a SELECT
	writingClausePattern = regexp.MustCompile(`(?i)\bINTO\s+(OUTFILE|DUMPFILE)\b|\bSELECT\b[^;]*\bINTO\s+[a-zA-Z_#@]`)

	leadingCTEPattern = regexp.MustCompile(`(?is)^\s*with\b`)

	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Normalize trims the query, strips one trailing semicolon and rejects
// empty input or multiple statements.
func Normalize(sqlQuery string) (string, error) {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return "", ErrEmptyQuery
	}

	normalized := stripTrailingSemicolon(sqlQuery)
	if normalized == "" {
		return "", ErrEmptyQuery
	}
	if strings.Contains(maskLiterals(normalized), ";") {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// RequireReadOnly rejects anything but SELECT and pure-SELECT WITH statements.
func RequireReadOnly(sqlQuery string) error {
	body := strings.TrimSpace(stripComments(maskLiterals(sqlQuery)))
	upper := strings.ToUpper(body)

	switch {
	case strings.HasPrefix(upper, "SELECT"):
	case strings.HasPrefix(upper, "WITH"):
		if modifyingCTEPattern.MatchString(body) {
			return ErrNotReadOnly
		}
	default:
		return ErrNotReadOnly
	}

	if writingClausePattern.MatchString(body) {
		return ErrNotReadOnly
	}
	return nil
}

// RequireCTE rejects queries that do not open with a WITH clause.
func RequireCTE(sqlQuery string) error {
	if !leadingCTEPattern.MatchString(stripComments(sqlQuery)) {
		return ErrCTERequired
	}
	return nil
}

// Fingerprint returns a whitespace- and case-insensitive form of the query,
// used to detect a regenerated query that repeats a failed one.
func Fingerprint(sqlQuery string) string {
	normalized := stripTrailingSemicolon(strings.TrimSpace(sqlQuery))
	return strings.ToLower(strings.Join(strings.Fields(normalized), " "))
}

func stripComments(sqlQuery string) string {
	withoutBlocks := blockCommentPattern.ReplaceAllString(sqlQuery, " ")
	return lineCommentPattern.ReplaceAllString(withoutBlocks, " ")
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace around it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}

// maskLiterals replaces the contents of quoted string literals with spaces so
// that keyword and identifier scans ignore them. Byte offsets are preserved.
// Both backslash escapes and doubled quotes are handled.
func maskLiterals(sqlQuery string) string {
	out := []byte(sqlQuery)
	var quote byte
	for i := 0; i < len(out); i++ {
		c := out[i]
		if quote == 0 {
			if c == '\'' || c == '"' {
				quote = c
			}
			continue
		}
		switch {
		case c == '\\' && i+1 < len(out):
			out[i], out[i+1] = ' ', ' '
			i++
		case c == quote:
			if i+1 < len(out) && out[i+1] == quote {
				out[i], out[i+1] = ' ', ' '
				i++
				continue
			}
			quote = 0
		default:
			out[i] = ' '
		}
	}
	return string(out)
}
