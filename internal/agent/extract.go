package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// extractJSON pulls the JSON object out of a model reply. It prefers a fenced
// ```json block, then the whole reply, then the first balanced object. When
// nothing parses the reply is returned as {"rawText": ...} and ok is false.
func extractJSON(text string) (obj map[string]json.RawMessage, ok bool) {
	text = strings.TrimSpace(text)

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if obj, ok := decodeObject(m[1]); ok {
			return obj, true
		}
	}
	if obj, ok := decodeObject(text); ok {
		return obj, true
	}
	if candidate := firstObject(text); candidate != "" {
		if obj, ok := decodeObject(candidate); ok {
			return obj, true
		}
		if obj, ok := decodeObject(removeTrailingCommas(candidate)); ok {
			return obj, true
		}
	}

	raw, _ := json.Marshal(text)
	return map[string]json.RawMessage{"rawText": raw}, false
}

func decodeObject(s string) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// firstObject returns the first balanced {...} span, skipping braces inside strings.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

func removeTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}
