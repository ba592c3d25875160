package generation

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response contains no JSON document.
var ErrNoJSON = errors.New("response contains no JSON document")

// ExtractJSON pulls the JSON document out of a chat response. Models often wrap
// JSON in markdown fences or surround it with prose; the first balanced object
// or array that parses is returned.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(stripFence(text))
	if json.Valid([]byte(s)) && s != "" {
		return json.RawMessage(s), nil
	}

	closeAt := bracketSpans(s)
	for start := 0; start < len(s); start++ {
		end, ok := closeAt[start]
		if !ok {
			continue
		}
		if candidate := s[start : end+1]; json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, ErrNoJSON
}

func stripFence(s string) string {
	i := strings.Index(s, "```")
	if i == -1 {
		return s
	}
	rest := s[i+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[nl+1:] // drop the info string (json, JSON, ...)
	}
	if j := strings.Index(rest, "```"); j != -1 {
		return rest[:j]
	}
	return rest
}

// bracketSpans maps the index of every balanced '{' or '[' to the index of
// its closing bracket in a single pass. String literals are skipped while
// inside a bracket; unclosed openers are absent from the map.
func bracketSpans(s string) map[int]int {
	spans := make(map[int]int)
	var open []int
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
			inString = len(open) > 0
		case '{', '[':
			open = append(open, i)
		case '}', ']':
			if len(open) == 0 {
				continue
			}
			spans[open[len(open)-1]] = i
			open = open[:len(open)-1]
		}
	}
	return spans
}
