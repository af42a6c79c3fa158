package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// extractJSON strips markdown fences and whitespace the models sometimes
// wrap around their JSON payloads.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func parseJSONArray[T any](raw string) ([]T, error) {
	cleaned := extractJSON(raw)
	var out []T
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		// Some models wrap the array in an object with a single key.
		var wrapper map[string]json.RawMessage
		if wrapErr := json.Unmarshal([]byte(cleaned), &wrapper); wrapErr == nil {
			for _, v := range wrapper {
				if err2 := json.Unmarshal(v, &out); err2 == nil {
					return out, nil
				}
			}
		}
		return nil, fmt.Errorf("parse LLM response: %w", err)
	}
	return out, nil
}

func parseStructuredQuery(raw string, dst any) error {
	cleaned := extractJSON(raw)
	if err := json.Unmarshal([]byte(cleaned), dst); err != nil {
		return fmt.Errorf("parse structured query: %w", err)
	}
	return nil
}

// normalizeLandmarkName makes an LLM-suggested name geocoder-friendly:
// drop a leading article, cut at parentheses, split run-together camel case.
func normalizeLandmarkName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "The ") {
		name = name[4:]
	}
	if idx := strings.Index(name, "("); idx > 0 {
		name = strings.TrimSpace(name[:idx])
	}
	return splitCamelCase(name)
}

func splitCamelCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			sb.WriteRune(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
