package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when every extraction strategy has been exhausted
// without finding a well-formed JSON document in the response.
var ErrNoJSON = errors.New("no valid JSON found in model response")

var fencedBlocks = []*regexp.Regexp{
	regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```"),
	regexp.MustCompile("(?is)```\\s*json\\s*(.*?)\\s*```"),
	regexp.MustCompile("(?s)```\\s*(.*?)\\s*```"),
}

// ExtractJSON recovers the JSON document embedded in a model response.
// Strategies, in preference order: the raw response itself, a ```json fenced
// block, an untagged fenced block, and finally a balanced-bracket scan for
// JSON loosely embedded in prose. Only after all strategies fail does it
// return ErrNoJSON.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNoJSON
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed), nil
		}
	}

	for _, pattern := range fencedBlocks {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			candidate := strings.TrimSpace(match[1])
			if !strings.HasPrefix(candidate, "{") && !strings.HasPrefix(candidate, "[") {
				continue
			}
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), nil
			}
		}
	}

	if embedded := scanEmbedded(text); embedded != nil {
		return embedded, nil
	}
	return nil, ErrNoJSON
}

// ExtractObject extracts and unmarshals the embedded JSON into out.
func ExtractObject(text string, out interface{}) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// scanEmbedded finds the first balanced {...} or [...] region that parses as
// JSON, starting from whichever opener appears first.
func scanEmbedded(text string) json.RawMessage {
	for offset := 0; offset < len(text); {
		objIdx := strings.IndexByte(text[offset:], '{')
		arrIdx := strings.IndexByte(text[offset:], '[')

		start, closer := -1, byte('}')
		if objIdx >= 0 && (arrIdx < 0 || objIdx < arrIdx) {
			start = offset + objIdx
		} else if arrIdx >= 0 {
			start = offset + arrIdx
			closer = ']'
		}
		if start < 0 {
			return nil
		}

		if candidate := balancedRegion(text[start:], closer); candidate != "" {
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate)
			}
		}
		offset = start + 1
	}
	return nil
}

// balancedRegion returns the prefix of s up to the bracket matching s[0],
// tracking string literals and escapes so braces inside strings do not count.
func balancedRegion(s string, closer byte) string {
	opener := s[0]
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opener:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
