// Package jsonutil decodes loosely-typed values that language models return
// where a strict type was requested.
package jsonutil

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleString converts a raw JSON value to a string, accepting numbers and
// booleans where a string was expected. Returns "" for null or missing values.
func FlexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strings.TrimSpace(strVal)
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return strconv.FormatFloat(numVal, 'f', -1, 64)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return strconv.FormatBool(boolVal)
	}

	return strings.TrimSpace(string(raw))
}

// FlexibleFloat converts a raw JSON number or numeric string to a float64.
// ok is false when the value is missing, null or not numeric.
func FlexibleFloat(raw json.RawMessage) (value float64, ok bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	if err := json.Unmarshal(raw, &value); err == nil {
		return value, true
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err != nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// FlexibleBool accepts true/false as booleans, strings or 0/1 numbers.
func FlexibleBool(raw json.RawMessage) bool {
	switch strings.ToLower(FlexibleString(raw)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// ClampUnit clamps v to [0,1].
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
