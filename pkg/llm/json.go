package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/apperrors"
)

// Reasoning models (Qwen3, DeepSeek-R1) may prefix output with <think> blocks.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// ExtractJSON returns the first valid JSON object or array in a model
// response, skipping <think> blocks, code fences and surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if s, ok := extractBalancedJSON(cleaned, '{', '}'); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}
	if arrStart >= 0 {
		if s, ok := extractBalancedJSON(cleaned, '[', ']'); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", fmt.Errorf("%w: no valid JSON found in response", apperrors.ErrInvalidModelOutput)
}

// extractBalancedJSON returns the first balanced structure opened by
// openChar, ignoring brackets inside JSON strings.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == openChar:
			depth++
		case c == closeChar:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("%w: unmarshal JSON: %v", apperrors.ErrInvalidModelOutput, err)
	}
	return result, nil
}

// DecodeObject extracts the first JSON object of a response into a generic
// map, keeping numbers as json.Number so loosely typed model output can be
// validated field by field.
func DecodeObject(response string) (map[string]any, error) {
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON object: %v", apperrors.ErrInvalidModelOutput, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: expected a JSON object, got null", apperrors.ErrInvalidModelOutput)
	}
	return obj, nil
}
