package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ScalarKind discriminates the scalar variants a filter value may hold.
type ScalarKind string

const (
	ScalarNull   ScalarKind = "null"
	ScalarString ScalarKind = "string"
	ScalarNumber ScalarKind = "number"
	ScalarBool   ScalarKind = "bool"
)

// Scalar is a single filter operand. Only the field matching Kind is meaningful.
type Scalar struct {
	Kind   ScalarKind
	Text   string
	Number float64
	Bool   bool
}

// StringScalar builds a string scalar.
func StringScalar(s string) Scalar { return Scalar{Kind: ScalarString, Text: s} }

// NumberScalar builds a numeric scalar.
func NumberScalar(n float64) Scalar { return Scalar{Kind: ScalarNumber, Number: n} }

// BoolScalar builds a boolean scalar.
func BoolScalar(b bool) Scalar { return Scalar{Kind: ScalarBool, Bool: b} }

// Any returns the scalar as a plain Go value (nil, string, float64 or bool).
func (s Scalar) Any() any {
	switch s.Kind {
	case ScalarString:
		return s.Text
	case ScalarNumber:
		return s.Number
	case ScalarBool:
		return s.Bool
	default:
		return nil
	}
}

// Display renders the scalar for prompts and logs.
func (s Scalar) Display() string {
	switch s.Kind {
	case ScalarString:
		return s.Text
	case ScalarNumber:
		return strconv.FormatFloat(s.Number, 'f', -1, 64)
	case ScalarBool:
		return strconv.FormatBool(s.Bool)
	default:
		return "null"
	}
}

// FilterValue is the operand of a filter: either one scalar or an array of scalars.
// Objects and nested arrays are rejected by ParseFilterValue.
type FilterValue struct {
	IsArray bool
	Scalar  Scalar
	Items   []Scalar
}

// ScalarValue wraps a scalar as a filter value.
func ScalarValue(s Scalar) FilterValue { return FilterValue{Scalar: s} }

// ArrayValue wraps scalars as an array filter value.
func ArrayValue(items ...Scalar) FilterValue {
	return FilterValue{IsArray: true, Items: append([]Scalar{}, items...)}
}

// Scalars returns every scalar held by the value, in order.
func (v FilterValue) Scalars() []Scalar {
	if v.IsArray {
		return v.Items
	}
	return []Scalar{v.Scalar}
}

// ParseFilterValue converts a decoded JSON value into a FilterValue.
func ParseFilterValue(raw any) (FilterValue, error) {
	if arr, ok := raw.([]any); ok {
		items := make([]Scalar, 0, len(arr))
		for i, item := range arr {
			s, err := parseScalar(item)
			if err != nil {
				return FilterValue{}, fmt.Errorf("array item %d: %w", i, err)
			}
			items = append(items, s)
		}
		return FilterValue{IsArray: true, Items: items}, nil
	}

	s, err := parseScalar(raw)
	if err != nil {
		return FilterValue{}, err
	}
	return FilterValue{Scalar: s}, nil
}

func parseScalar(raw any) (Scalar, error) {
	switch v := raw.(type) {
	case nil:
		return Scalar{Kind: ScalarNull}, nil
	case string:
		return StringScalar(v), nil
	case float64:
		return NumberScalar(v), nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return Scalar{}, fmt.Errorf("invalid number %q: %w", v.String(), err)
		}
		return NumberScalar(n), nil
	case int:
		return NumberScalar(float64(v)), nil
	case bool:
		return BoolScalar(v), nil
	default:
		return Scalar{}, fmt.Errorf("unsupported filter value type %T", raw)
	}
}

// MarshalJSON encodes the value as a plain JSON scalar or array.
func (v FilterValue) MarshalJSON() ([]byte, error) {
	if v.IsArray {
		items := make([]any, len(v.Items))
		for i, s := range v.Items {
			items[i] = s.Any()
		}
		return json.Marshal(items)
	}
	return json.Marshal(v.Scalar.Any())
}

// UnmarshalJSON decodes a plain JSON scalar or array of scalars.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseFilterValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
