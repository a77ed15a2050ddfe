package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns for pulling JSON out of model responses. Models
// wrap JSON in code fences or prose often enough that a bare Unmarshal is
// not reliable.
var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\n?([\\s\\S]*?)\n?```")
	objectRegex    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// parseJSON parses a model response as T, tolerating code fences and
// surrounding prose. Strategy sequence: direct parse, fence contents,
// outermost object.
func parseJSON[T any](text string) (*T, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	var result T
	if err := json.Unmarshal([]byte(trimmed), &result); err == nil {
		return &result, nil
	}

	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &result); err == nil {
			return &result, nil
		}
	}

	if m := objectRegex.FindString(trimmed); m != "" {
		if err := json.Unmarshal([]byte(m), &result); err == nil {
			return &result, nil
		}
	}

	return nil, fmt.Errorf("no parseable JSON object in response")
}
