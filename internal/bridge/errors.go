package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed bridge call.
type Kind string

const (
	// KindInterpreterUnavailable means no launcher could start the engine.
	KindInterpreterUnavailable Kind = "interpreter_unavailable"
	// KindEngine means the engine ran and exited non-zero.
	KindEngine Kind = "engine_error"
	// KindMalformedOutput means the engine exited zero without a valid JSON document.
	KindMalformedOutput Kind = "malformed_output"
)

// Attempt records one launcher that failed to start the engine.
type Attempt struct {
	Launcher Launcher
	Err      error
}

// Error is the failure of a bridge call.
type Error struct {
	Kind    Kind
	Message string

	// Attempts lists the launchers that failed to start, in order.
	Attempts []Attempt

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a bridge error, or "" if err is not one.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func unavailableError(attempts []Attempt) *Error {
	names := make([]string, 0, len(attempts))
	var last error
	for _, a := range attempts {
		names = append(names, a.Launcher.Name)
		last = a.Err
	}
	msg := "no launcher configured"
	if len(attempts) > 0 {
		msg = fmt.Sprintf("tried %s: %v", strings.Join(names, ", "), last)
	}
	return &Error{
		Kind:     KindInterpreterUnavailable,
		Message:  msg,
		Attempts: attempts,
		Err:      last,
	}
}

func terminatedError(cause error) *Error {
	return &Error{
		Kind:    KindEngine,
		Message: fmt.Sprintf("engine terminated: %v", cause),
		Err:     cause,
	}
}
