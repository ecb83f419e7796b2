package service

import (
	"errors"
	"fmt"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/repository"
)

type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindUnauthenticated
	KindUnauthorized
	KindNotFound
	KindValidation
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation failed"
	case KindConflict:
		return "conflict"
	}
	return "unexpected"
}

// Error is the error every workflow returns to the transport layer.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  []string
	Err     error
	// Cleanup is set when a compensating action also failed.
	Cleanup error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Cleanup != nil {
		msg += " (cleanup: " + e.Cleanup.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Validation(msg string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Unexpected(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUnexpected, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsError converts any error into *Error. Repository sentinels map to their
// kinds and everything else becomes KindUnexpected.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "resource not found", Err: err}
	case errors.Is(err, repository.ErrDuplicate):
		return &Error{Kind: KindConflict, Message: "resource already exists", Err: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Kind: KindConflict, Message: "resource was modified concurrently", Err: err}
	}
	return &Error{Kind: KindUnexpected, Message: "unexpected error", Err: err}
}

func notFoundAs(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return NotFound(msg)
	}
	return err
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// validate runs entity validation and wraps violations into a validation error.
func validate(v any) error {
	if msgs := entity.Validate(v); len(msgs) > 0 {
		return Validation("validation failed", msgs...)
	}
	return nil
}
