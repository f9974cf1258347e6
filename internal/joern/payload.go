package joern

import (
	"encoding/json"
	"regexp"
)

// Engine responses embed structured payloads inside triple-quote delimiters
// within free-form text.
var payloadPattern = regexp.MustCompile(`(?s)"""(.*?)"""`)

// ExtractPayload isolates the first well-formed triple-quoted JSON document in
// a response. It returns nil when no payload is present or the delimited text
// is not valid JSON: absence of a payload is a normal outcome for
// side-effecting commands, not an error.
func ExtractPayload(raw string) json.RawMessage {
	for _, match := range payloadPattern.FindAllStringSubmatch(raw, -1) {
		candidate := []byte(match[1])
		if json.Valid(candidate) {
			return json.RawMessage(candidate)
		}
	}
	return nil
}
