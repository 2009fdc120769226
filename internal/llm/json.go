package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Oracle responses wrap JSON in prose or markdown fences often enough
// that decoding has to dig the payload out itself.

func decodeArray(s string, v any) error {
	return decodeDelimited(s, v, '[', ']')
}

func decodeObject(s string, v any) error {
	return decodeDelimited(s, v, '{', '}')
}

func decodeDelimited(s string, v any, opener, closer byte) error {
	s = stripFences(s)
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, opener)
	end := strings.LastIndexByte(s, closer)
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON payload in response")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("malformed JSON payload: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
