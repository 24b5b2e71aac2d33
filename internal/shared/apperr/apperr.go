// Package apperr defines the structured error used across the backend.
//
// Every fallible operation resolves to either a success payload or an *Error
// carrying a machine-readable Kind, the operation that failed, and the
// component or environment identifier it concerned. HTTP handlers translate
// the Kind into a status code in exactly one place.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for callers and clients.
type Kind string

const (
	KindTransientIO     Kind = "transient_io"
	KindTimeout         Kind = "timeout"
	KindStaging         Kind = "staging"
	KindUnsupportedKind Kind = "unsupported_kind"
	KindNotFound        Kind = "not_found"
	KindProcessSpawn    Kind = "process_spawn"
	KindInvalid         Kind = "invalid_request"
	KindCanceled        Kind = "canceled"
	KindInternal        Kind = "internal"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string // e.g. "fetch", "stage", "start"
	Subject string // component or environment identifier
	Err     error

	// Diagnostics holds captured process output (extraction, spawn).
	Diagnostics string
}

// Error renders "<op> <subject>: <cause>".
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Subject != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Subject)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	} else {
		sb.WriteString(": ")
		sb.WriteString(string(e.Kind))
	}
	if e.Diagnostics != "" {
		sb.WriteString(" (output: ")
		sb.WriteString(strings.TrimSpace(e.Diagnostics))
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Newf creates a classified error with a formatted cause.
func Newf(kind Kind, op, subject, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// NotFound reports a missing environment or component.
func NotFound(op, subject string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Subject: subject, Err: ErrNotFound}
}

// FromContext classifies a context error: an expired deadline is a
// timeout, anything else is a caller cancellation.
func FromContext(op, subject string, err error) *Error {
	kind := KindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// ErrNotFound is the cause carried by every not_found error.
var ErrNotFound = errors.New("not found")

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// SubjectOf returns the subject of the first *Error in err's chain.
func SubjectOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Subject
	}
	return ""
}
