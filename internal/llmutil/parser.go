// File: internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Regex definitions use \x60 for backticks because Go raw strings cannot
// contain backticks.
var jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// ParseJSONResponse parses an LLM response into a target Go type. Models
// routinely wrap JSON in markdown fences or conversational text even when
// asked for a bare object; this strips both before unmarshaling.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	payload := response

	if strings.HasPrefix(response, "```") {
		if m := jsonObjectRegex.FindStringSubmatch(response); len(m) > 1 {
			payload = m[1]
		}
	} else if !strings.HasPrefix(response, "{") {
		first := strings.Index(response, "{")
		last := strings.LastIndex(response, "}")
		if first != -1 && last > first {
			payload = response[first : last+1]
		}
	}

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w (extracted: %s)", err, truncate(payload, 200))
	}
	return &result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
