package llm

import (
	"encoding/json"
	"strings"

	"github.com/tiptally/tiptally/internal/common"
)

// ExtractObject pulls the single JSON object out of a model reply.
// Stage one tries the whole reply as-is; stage two scans for the first
// balanced top-level {...} span, which absorbs markdown fences and
// chatter around the object. Anything else is a malformed response.
func ExtractObject(reply string) ([]byte, error) {
	trimmed := strings.TrimSpace(reply)
	if isJSONObject(trimmed) {
		return []byte(trimmed), nil
	}

	if span, ok := firstObjectSpan(trimmed); ok && isJSONObject(span) {
		return []byte(span), nil
	}

	return nil, common.NewAppError("MALFORMED_RESPONSE",
		"model reply contains no parseable JSON object",
		common.ErrMalformedResponse)
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var m map[string]any
	return json.Unmarshal([]byte(s), &m) == nil
}

// firstObjectSpan returns the first balanced top-level brace span,
// tracking string literals so braces inside values don't miscount.
func firstObjectSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
