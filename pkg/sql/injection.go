package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
)

// InjectionCheckResult describes a filter value that matched a SQL injection pattern.
type InjectionCheckResult struct {
	Index       int    // Position of the filter in the checked slice
	Field       string // Filter field the value belongs to
	Value       string // The offending value
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckValueForInjection runs libinjection over a single string value.
// Returns nil when the value is clean.
func CheckValueForInjection(field, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}

// CheckFilters screens every string operand of the parsed filters. Filter
// values are copied verbatim into generated SQL, so a value that looks like
// injected SQL is reported here before generation.
//
// Numbers, booleans and nulls are never reported.
func CheckFilters(filters []models.Filter) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for i, f := range filters {
		for _, s := range f.Value.Scalars() {
			if s.Kind != models.ScalarString {
				continue
			}
			if r := CheckValueForInjection(f.Field, s.Text); r != nil {
				r.Index = i
				results = append(results, r)
			}
		}
	}
	return results
}
