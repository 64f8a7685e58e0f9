package sql

import (
	"regexp"
	"strings"
)

// SelectColumn is one projected expression of the outermost SELECT.
type SelectColumn struct {
	Expr      string // Expression text as written
	Name      string // Alias, or bare column name when unaliased
	Aggregate bool   // Expression applies COUNT/SUM/AVG/MIN/MAX
}

var (
	aggregatePattern   = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max)\s*\(`)
	explicitAlias      = regexp.MustCompile(`(?is)\s+as\s+([` + "`" + `"\[]?[\w]+[` + "`" + `"\]]?)\s*$`)
	implicitAlias      = regexp.MustCompile(`(?s)[\w)\]` + "`" + `"]\s+([a-zA-Z_]\w*)\s*$`)
	qualifiedColumn    = regexp.MustCompile(`^[` + "`" + `"\[]?\w+[` + "`" + `"\]]?\.[` + "`" + `"\[]?(\w+)[` + "`" + `"\]]?$`)
	bareIdentifier     = regexp.MustCompile(`^[` + "`" + `"\[]?(\w+)[` + "`" + `"\]]?$`)
	identifierQuoteSet = "`\"[]"
)

// OuterSelectColumns returns the projection of the top-level SELECT, skipping
// any SELECTs nested in CTE bodies or subqueries. Returns nil when no
// top-level SELECT ... FROM can be located.
func OuterSelectColumns(sqlQuery string) []SelectColumn {
	clean := stripComments(sqlQuery)
	masked := maskLiterals(clean)
	lower := strings.ToLower(masked)

	selectAt := findTopLevelKeyword(lower, "select", 0)
	if selectAt < 0 {
		return nil
	}
	start := selectAt + len("select")
	end := findTopLevelKeyword(lower, "from", start)
	if end < 0 {
		end = len(lower)
	}

	projection := strings.TrimSpace(clean[start:end])
	if p := strings.ToLower(projection); strings.HasPrefix(p, "distinct ") {
		projection = strings.TrimSpace(projection[len("distinct "):])
	}

	var columns []SelectColumn
	for _, expr := range splitTopLevel(projection) {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		columns = append(columns, parseSelectColumn(expr))
	}
	return columns
}

// AggregateColumnNames returns the names of the aggregate columns of the
// outermost SELECT.
func AggregateColumnNames(sqlQuery string) []string {
	var names []string
	for _, col := range OuterSelectColumns(sqlQuery) {
		if col.Aggregate {
			names = append(names, col.Name)
		}
	}
	return names
}

func parseSelectColumn(expr string) SelectColumn {
	col := SelectColumn{
		Expr:      expr,
		Aggregate: aggregatePattern.MatchString(maskLiterals(expr)),
	}

	switch {
	case explicitAlias.MatchString(expr):
		col.Name = unquoteIdentifier(explicitAlias.FindStringSubmatch(expr)[1])
	case qualifiedColumn.MatchString(expr):
		col.Name = qualifiedColumn.FindStringSubmatch(expr)[1]
	case bareIdentifier.MatchString(expr):
		col.Name = bareIdentifier.FindStringSubmatch(expr)[1]
	case implicitAlias.MatchString(expr) && !strings.HasSuffix(strings.ToLower(expr), " end"):
		col.Name = implicitAlias.FindStringSubmatch(expr)[1]
	default:
		col.Name = expr
	}
	return col
}

func unquoteIdentifier(s string) string {
	return strings.Trim(s, identifierQuoteSet)
}

// findTopLevelKeyword returns the index of the first whole-word occurrence of
// keyword at parenthesis depth zero, at or after from. lower must already
// be lower-cased with literals masked.
func findTopLevelKeyword(lower, keyword string, from int) int {
	depth := 0
	for i := 0; i < len(lower); i++ {
		switch lower[i] {
		case '(':
			depth++
			continue
		case ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if i < from || depth != 0 || !strings.HasPrefix(lower[i:], keyword) {
			continue
		}
		if i > 0 && isWordByte(lower[i-1]) {
			continue
		}
		if after := i + len(keyword); after < len(lower) && isWordByte(lower[after]) {
			continue
		}
		return i
	}
	return -1
}

// splitTopLevel splits on commas that are not inside parentheses or quotes.
func splitTopLevel(s string) []string {
	masked := maskLiterals(s)
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, s[last:])
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
