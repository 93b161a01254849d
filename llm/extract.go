package llm

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Extract asks c for a structured answer and parses it with parse. The
// fallback supplies the value when there is no completer, the request
// fails, or parse rejects the text.
func Extract[T any](ctx context.Context, c Completer, p Prompt, parse func(string) (T, error), fallback func() T) T {
	if c == nil {
		return fallback()
	}
	text, err := c.Complete(ctx, p)
	if err != nil {
		return fallback()
	}
	v, err := parse(text)
	if err != nil {
		return fallback()
	}
	return v
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?\\s*```$")

// StripCodeFences removes a Markdown code fence wrapped around s.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseJSON decodes model output into v. Fences are stripped, surrounding
// prose is cut to the outermost JSON value, and malformed JSON is repaired
// once before giving up.
func ParseJSON(text string, v any) error {
	s := StripCodeFences(text)
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	s = outermostJSON(s)
	if s == "" {
		return errors.New("no JSON value in response")
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), v)
}

func outermostJSON(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	closer := byte(']')
	if s[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}
