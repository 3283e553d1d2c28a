// Package fault classifies domain errors into the wire codes returned to clients.
//
// Every error that leaves the engine, matchmaking or identity packages is either
// nil or carries one of the Err* kinds below. Callers match on kinds with
// errors.Is and translate them with CodeOf.
package fault

import (
	"errors"
	"fmt"
)

// Code is the stable, client-visible error classification.
type Code string

// Wire codes.
const (
	CodeBadRequest  Code = "BAD_REQUEST"
	CodeNotFound    Code = "NOT_FOUND"
	CodeForbidden   Code = "FORBIDDEN"
	CodeConflict    Code = "CONFLICT"
	CodeNoQuestions Code = "NO_QUESTIONS"
	CodeInternal    Code = "INTERNAL"
)

// Sentinel kinds. Wrap these, never return them bare from an exported operation.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrConflict    = errors.New("conflict")
	ErrNoQuestions = errors.New("not enough questions")
	ErrInternal    = errors.New("internal error")
)

var kindCodes = []struct {
	kind error
	code Code
}{
	{ErrBadRequest, CodeBadRequest},
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrConflict, CodeConflict},
	{ErrNoQuestions, CodeNoQuestions},
	{ErrInternal, CodeInternal},
}

// Error ties an operation name to a kind and an optional cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind with no further cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// NewKindf is NewKind with a formatted detail message.
func NewKindf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap annotates err with op. Errors without a kind are classified as internal.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if kindOf(err) == nil {
		return &Error{Op: op, Kind: ErrInternal, Err: err}
	}
	return &Error{Op: op, Err: err}
}

// WrapKind annotates err with op and an explicit kind.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// CodeOf returns the wire code for err. Unclassified errors map to INTERNAL.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, kc := range kindCodes {
		if errors.Is(err, kc.kind) {
			return kc.code
		}
	}
	return CodeInternal
}

func kindOf(err error) error {
	for _, kc := range kindCodes {
		if errors.Is(err, kc.kind) {
			return kc.kind
		}
	}
	return nil
}
