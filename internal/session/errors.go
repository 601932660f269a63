package session

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors. Kinds are stable and safe to expose.
type Kind string

const (
	KindValidation          Kind = "Validation"
	KindInvalidTimeSpent    Kind = "InvalidTimeSpent"
	KindSessionNotFound     Kind = "SessionNotFound"
	KindSessionNotActive    Kind = "SessionNotActive"
	KindSessionTerminated   Kind = "SessionTerminated"
	KindInvalidTransition   Kind = "InvalidTransition"
	KindQuestionMismatch    Kind = "QuestionMismatch"
	KindSessionNotCompleted Kind = "SessionNotCompleted"
	KindPoolExhausted       Kind = "PoolExhausted"
	KindInternal            Kind = "Internal"
)

// Error is the error type returned by the Manager.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrInvalidTimeSpent    = &Error{Kind: KindInvalidTimeSpent}
	ErrSessionNotFound     = &Error{Kind: KindSessionNotFound}
	ErrSessionNotActive    = &Error{Kind: KindSessionNotActive}
	ErrSessionTerminated   = &Error{Kind: KindSessionTerminated}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrQuestionMismatch    = &Error{Kind: KindQuestionMismatch}
	ErrSessionNotCompleted = &Error{Kind: KindSessionNotCompleted}
	ErrPoolExhausted       = &Error{Kind: KindPoolExhausted}
	ErrInternal            = &Error{Kind: KindInternal}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
