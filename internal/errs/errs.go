// Package errs defines the uniform {message} error shape returned by the query,
// auth and storage layers. Callers inspect the error instead of recovering panics.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindAmbiguous          Kind = "ambiguous"
	KindConflict           Kind = "conflict"
	KindValidation         Kind = "validation"
	KindTransport          Kind = "transport"
	KindAuthState          Kind = "auth_state"
	KindInvalidCredentials Kind = "invalid_credentials"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "No rows found"}
	ErrAmbiguous          = &Error{Kind: KindAmbiguous, Message: "Multiple rows found"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "conflict"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrTransport          = &Error{Kind: KindTransport, Message: "transport failure"}
	ErrAuthState          = &Error{Kind: KindAuthState, Message: "no active session"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap keeps err as the cause and uses its text as the message.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Cause: err}
}

// From normalises err into an *Error; anything that is not already one is a transport failure.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var target *Error
	if errors.As(err, &target) {
		return target
	}
	return Wrap(KindTransport, err)
}

func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}
