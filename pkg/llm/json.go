package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/luminadata/schemagraph/pkg/apperrors"
)

// codeFencePattern matches a fenced code block with an optional
// language tag, e.g. ```json ... ``` or ```sql ... ```.
var codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_]*\\s*\\n?(.*?)```")

// StripCodeFences returns the content of the first fenced code block,
// or the trimmed input when no fence is present. Models wrap both JSON
// and SQL in fences despite instructions not to.
func StripCodeFences(response string) string {
	if m := codeFencePattern.FindStringSubmatch(response); len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(response)
}

// ExtractJSON extracts JSON content from a model response that may
// contain markdown fences or surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := StripCodeFences(response)

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	if arrStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok {
			if json.Valid([]byte(jsonStr)) {
				return jsonStr, nil
			}
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	return "", apperrors.New(apperrors.KindLLMMalformed, "no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced JSON structure starting
// with openChar, counting bracket depth and skipping string contents.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it
// into the target type.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, apperrors.Wrap(apperrors.KindLLMMalformed, "unmarshal JSON", err)
	}

	return result, nil
}
