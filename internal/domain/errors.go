package domain

import (
	"errors"
	"fmt"
)

// ErrNoModelsAvailable means no model remains that a blend can be built on.
var ErrNoModelsAvailable = errors.New("no valid models available for prediction")

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindInputEmpty           ErrorKind = "InputEmpty"
	KindInputMalformed       ErrorKind = "InputMalformed"
	KindInputFieldMissing    ErrorKind = "InputFieldMissing"
	KindInputFieldInvalid    ErrorKind = "InputFieldInvalid"
	KindMissingCriticalModel ErrorKind = "MissingCriticalModel"
	KindModelRuntimeFailure  ErrorKind = "ModelRuntimeFailure"
	KindNoModelsAvailable    ErrorKind = "NoModelsAvailable"
	KindInternalUnexpected   ErrorKind = "InternalUnexpected"
)

// Error is a classified failure. Message is the text reported to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error

	// Stack is set for KindInternalUnexpected.
	Stack string
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInput reports whether the failure was caused by the caller's input.
func (e *Error) IsInput() bool {
	switch e.Kind {
	case KindInputEmpty, KindInputMalformed, KindInputFieldMissing, KindInputFieldInvalid:
		return true
	}
	return false
}

// NewError builds a classified error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err with the given caller-facing message.
func WrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of a classified error, or KindInternalUnexpected
// for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternalUnexpected
}
