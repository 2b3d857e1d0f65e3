package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxExcerpt bounds how much raw stdout is quoted in a malformed-output error.
const maxExcerpt = 200

// InvocationResult is what a finished engine process left behind.
type InvocationResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Classify turns a finished invocation into its JSON payload or a typed error.
// A non-zero exit always wins over whatever was printed to stdout.
func Classify(res InvocationResult) (json.RawMessage, error) {
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(strings.ToValidUTF8(string(res.Stderr), "�"))
		if msg == "" {
			msg = fmt.Sprintf("engine exited with status %d", res.ExitCode)
		}
		return nil, &Error{Kind: KindEngine, Message: msg}
	}

	var payload json.RawMessage
	if err := json.Unmarshal(res.Stdout, &payload); err != nil {
		return nil, &Error{
			Kind:    KindMalformedOutput,
			Message: fmt.Sprintf("%v (stdout: %q)", err, excerpt(res.Stdout)),
			Err:     err,
		}
	}
	return payload, nil
}

// checkShape verifies the top-level JSON kind of a payload.
func checkShape(payload json.RawMessage, shape Shape) error {
	got := shapeOf(payload)
	if shape == ShapeAny || got == shape {
		return nil
	}
	return &Error{
		Kind:    KindMalformedOutput,
		Message: fmt.Sprintf("expected JSON %s, got %s (stdout: %q)", shape, got, excerpt(payload)),
	}
}

func shapeOf(payload json.RawMessage) Shape {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return ShapeAny
	}
	switch trimmed[0] {
	case '{':
		return ShapeObject
	case '[':
		return ShapeArray
	default:
		return ShapeScalar
	}
}

// excerpt returns at most maxExcerpt bytes of b, cut on a rune boundary.
func excerpt(b []byte) string {
	if len(b) <= maxExcerpt {
		return strings.ToValidUTF8(string(b), "�")
	}
	cut := maxExcerpt
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return strings.ToValidUTF8(string(b[:cut]), "�") + "..."
}
