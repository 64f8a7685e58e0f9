package sql

import (
	"regexp"
	"strings"
)

var (
	// table.field references; string literals are masked before matching
	fieldRefPattern = regexp.MustCompile(`\b([a-zA-Z_]\w*)\.([a-zA-Z_]\w*)\b`)

	// Names introduced by "WITH name AS (" and ", name AS ("
	cteNamePattern = regexp.MustCompile(`(?is)(?:\bwith\b|,)\s*([a-zA-Z_]\w*)\s+as\s*\(`)
)

// ExtractFieldRefs returns every distinct "table.field" reference in the
// query, in order of first appearance. Matching is case-insensitive but the
// first spelling seen is kept.
func ExtractFieldRefs(sqlQuery string) []string {
	masked := maskLiterals(stripComments(sqlQuery))
	seen := make(map[string]struct{})
	refs := []string{}
	for _, m := range fieldRefPattern.FindAllStringSubmatch(masked, -1) {
		ref := m[1] + "." + m[2]
		key := strings.ToLower(ref)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

// ExtractCTENames returns the lower-cased names of every common table
// expression defined in the query.
func ExtractCTENames(sqlQuery string) map[string]struct{} {
	masked := maskLiterals(stripComments(sqlQuery))
	names := make(map[string]struct{})
	for _, m := range cteNamePattern.FindAllStringSubmatch(masked, -1) {
		names[strings.ToLower(m[1])] = struct{}{}
	}
	return names
}

// FindUnknownFields returns the refs whose table part is not a CTE name and
// that known does not accept. Order follows refs.
func FindUnknownFields(refs []string, cteNames map[string]struct{}, known func(field string) bool) []string {
	var unknown []string
	for _, ref := range refs {
		table, _, ok := strings.Cut(ref, ".")
		if !ok {
			continue
		}
		if _, isCTE := cteNames[strings.ToLower(table)]; isCTE {
			continue
		}
		if !known(ref) {
			unknown = append(unknown, ref)
		}
	}
	return unknown
}

// ContainsField reports whether field appears in refs, ignoring case.
func ContainsField(refs []string, field string) bool {
	for _, ref := range refs {
		if strings.EqualFold(ref, field) {
			return true
		}
	}
	return false
}
