package core

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories surfaced to callers.
type Kind string

const (
	// BackendRejected: the runtime understood the request and refused it.
	BackendRejected Kind = "BackendRejected"
	// TransportFailure: the call or stream could not be completed.
	TransportFailure Kind = "TransportFailure"
	// PreconditionFailed: the action is illegal for the current state.
	PreconditionFailed Kind = "PreconditionFailed"
	// ActionInProgress: another action on the same resource is pending.
	ActionInProgress Kind = "ActionInProgress"
	// ValidationFailed: a parameter was malformed or missing.
	ValidationFailed Kind = "ValidationFailed"
)

// Error is the single error type carrying a Kind. Match with errors.Is against
// a Kind sentinel (errors.Is(err, core.ErrBackendRejected)) or errors.As.
type Error struct {
	Kind    Kind
	Op      string // command or action name, may be empty
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind with no message,
// which is how the Err* sentinels are shaped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrBackendRejected    = &Error{Kind: BackendRejected}
	ErrTransportFailure   = &Error{Kind: TransportFailure}
	ErrPreconditionFailed = &Error{Kind: PreconditionFailed}
	ErrActionInProgress   = &Error{Kind: ActionInProgress}
	ErrValidationFailed   = &Error{Kind: ValidationFailed}
)

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. If err already carries a Kind it is returned as is.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// KindOf returns the Kind carried by err, or "" if there is none.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
