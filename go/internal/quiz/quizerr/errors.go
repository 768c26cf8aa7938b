package quizerr

import (
	"errors"
	"fmt"
)

// Code is the reason string sent back to a caller when an operation is refused.
type Code string

const (
	// Authorization
	CodeNotHost Code = "not-host"

	// Lookup
	CodeNotFound   Code = "not-found"
	CodeNotJoined  Code = "not-joined"
	CodeUnknownSet Code = "unknown-set"

	// Answering
	CodeNoQuestion      Code = "no-question"
	CodeAlreadyAnswered Code = "already-answered"
	CodeTooLate         Code = "too-late"

	// Progression
	CodeNoMore Code = "no-more"
	CodeEnded  Code = "ended"

	// Transport
	CodeBadRequest Code = "bad-request"
	CodeInternal   Code = "internal"
)

// Error is an expected, caller-visible refusal.
type Error struct {
	Code    Code   `json:"reason"`
	Message string `json:"message,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same code, so callers can compare against the
// package-level values with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates an Error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause to a new Error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

var (
	ErrNotHost         = &Error{Code: CodeNotHost}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrNotJoined       = &Error{Code: CodeNotJoined}
	ErrNoQuestion      = &Error{Code: CodeNoQuestion}
	ErrAlreadyAnswered = &Error{Code: CodeAlreadyAnswered}
	ErrTooLate         = &Error{Code: CodeTooLate}
	ErrNoMore          = &Error{Code: CodeNoMore}
	ErrEnded           = &Error{Code: CodeEnded}
)

// BadRequest reports a malformed client frame.
func BadRequest(message string) *Error {
	return New(CodeBadRequest, message)
}

// UnknownSet reports a question set name missing from the library.
func UnknownSet(name string) *Error {
	return New(CodeUnknownSet, fmt.Sprintf("question set %q not found", name))
}

// CodeOf returns the reason code of err, or CodeInternal when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
