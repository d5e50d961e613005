// Package textparse extracts structured payloads from free-form model
// output. Completion engines are treated as adversarial collaborators: the
// returned text may wrap the payload in prose, code fences or trailing
// commentary, or contain no payload at all.
//
// Extraction failures are always recoverable by design. Callers never
// propagate them; each call site supplies a typed fallback value instead.
package textparse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseError reports that no usable payload could be recovered from the
// text. It carries the raw input for diagnostic logging only.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extract payload: %s", e.Reason)
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Extract locates a JSON payload embedded in text and unmarshals it into v.
// It tolerates surrounding prose and markdown code fences. The candidate is
// validated before unmarshaling so partially JSON-like prose does not
// produce garbage fills.
func Extract(text string, v any) error {
	candidate, err := locate(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return &ParseError{Reason: err.Error(), Raw: text}
	}
	return nil
}

// locate narrows text down to the best JSON candidate.
func locate(text string) (string, error) {
	candidate := strings.TrimSpace(text)
	if candidate == "" {
		return "", &ParseError{Reason: "empty response", Raw: text}
	}

	if m := fenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	if gjson.Valid(candidate) {
		return candidate, nil
	}

	// No clean document; scan for the outermost object or array.
	start := strings.IndexAny(candidate, "{[")
	end := strings.LastIndexAny(candidate, "}]")
	if start < 0 || end <= start {
		return "", &ParseError{Reason: "no structured payload found", Raw: text}
	}
	candidate = candidate[start : end+1]
	if !gjson.Valid(candidate) {
		return "", &ParseError{Reason: "embedded payload is not valid JSON", Raw: text}
	}
	return candidate, nil
}
