package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON means the response contained no JSON object at all.
var ErrNoJSON = errors.New("no JSON object found in response")

// ParseJSON extracts the outermost JSON object from an LLM response and unmarshals it
// into T. Markdown fences and chatter around the object are ignored.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	jsonStr, ok := ExtractObject(response)
	if !ok {
		return zero, ErrNoJSON
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, Truncate(jsonStr, 500))
	}
	return result, nil
}

// ExtractObject returns the text between the first '{' and the last '}'.
func ExtractObject(response string) (string, bool) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return response[start : end+1], true
}

// StripFences removes a surrounding ``` block, with or without a language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
