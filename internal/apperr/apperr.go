// Package apperr defines the flat error taxonomy every core operation fails
// with. Components return *Error directly wherever spec.md names a specific
// failure kind; the facade only falls back to wrapping as Internal when a
// lower layer returned a plain error (a defect, not a decided failure).
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of user-visible failure categories.
type Kind string

const (
	AuthenticationFailure Kind = "authentication_failure"
	AccessDenied          Kind = "access_denied"
	NotFound              Kind = "not_found"
	ValidationFailure     Kind = "validation_failure"
	ImageProcessing       Kind = "image_processing"
	Internal              Kind = "internal"
)

// Error is the core error type. Message is safe to surface to a caller;
// Err, when set, is the underlying cause and is kept out of Message.
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches by Kind, so errors.Is(err, &apperr.Error{Kind: apperr.NotFound})
// holds for any NotFound error.
func (e *Error) Is(target error) bool {
	var k *Error
	if errors.As(target, &k) {
		return e.Kind == k.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) *Error {
	return New(ValidationFailure, fmt.Sprintf(format, args...))
}

func AccessDeniedf(format string, args ...any) *Error {
	return New(AccessDenied, fmt.Sprintf(format, args...))
}

func AuthFailuref(format string, args ...any) *Error {
	return New(AuthenticationFailure, fmt.Sprintf(format, args...))
}

func Internalf(err error, format string, args ...any) *Error {
	return Wrap(Internal, fmt.Sprintf(format, args...), err)
}

// KindOf reports the Kind of err, defaulting to Internal when err is not
// (or does not wrap) an *Error — i.e. an unplanned failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
