package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// decodeObject unmarshals the JSON object in a model reply. Models sometimes
// wrap it in a code fence or surround it with prose, so on failure the
// outermost {...} is tried.
func decodeObject(content string, target any) error {
	body := strings.TrimSpace(content)
	if body == "" {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(body), target); err == nil {
		return nil
	}
	inner := unfence(body)
	if start, end := strings.IndexByte(inner, '{'), strings.LastIndexByte(inner, '}'); start >= 0 && end > start {
		inner = inner[start : end+1]
	}
	if err := json.Unmarshal([]byte(inner), target); err != nil {
		return fmt.Errorf("%w (payload snippet: %s)", err, snippet(inner))
	}
	return nil
}

// unfence strips a surrounding ``` or ```json fence.
func unfence(body string) string {
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimLeft(body[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// snippet collapses whitespace and shortens s for error messages.
func snippet(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
