package bridge

import (
	"errors"
	"fmt"

	"ringobridge/internal/stream"
	"ringobridge/internal/window"
)

// Code classifies a failed call. Boolean results are never errors; these
// codes cover everything that is not an ordinary answer.
type Code string

const (
	CodeNotImplemented    Code = "NOT_IMPLEMENTED"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeUnavailable       Code = "UNAVAILABLE"
	CodeAlreadySubscribed Code = "ALREADY_SUBSCRIBED"
	CodeNotSubscribed     Code = "NOT_SUBSCRIBED"
	CodeInternal          Code = "INTERNAL"
)

// Error is returned by Router calls.
type Error struct {
	Code    Code
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && (t.Field == "" || t.Field == e.Field)
	}
	return false
}

// NotImplemented reports an unknown channel or method.
func NotImplemented(channel, method string) *Error {
	if method == "" {
		return &Error{Code: CodeNotImplemented, Message: fmt.Sprintf("unknown channel %q", channel)}
	}
	return &Error{Code: CodeNotImplemented, Message: fmt.Sprintf("%s has no method %q", channel, method)}
}

// InvalidArgument reports a missing or malformed argument.
func InvalidArgument(field, msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Field: field, Message: msg}
}

// Unavailable reports that the object behind a channel is gone.
func Unavailable(msg string) *Error {
	return &Error{Code: CodeUnavailable, Message: msg}
}

// AsError converts err into an *Error, mapping the sentinel errors of the
// core packages to their codes.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	switch {
	case errors.As(err, &be):
		return be
	case errors.Is(err, window.ErrUnavailable), errors.Is(err, stream.ErrQueueClosed):
		return Unavailable(err.Error())
	case errors.Is(err, stream.ErrAlreadySubscribed):
		return &Error{Code: CodeAlreadySubscribed, Message: err.Error()}
	case errors.Is(err, stream.ErrNotSubscribed):
		return &Error{Code: CodeNotSubscribed, Message: err.Error()}
	default:
		return &Error{Code: CodeInternal, Message: err.Error()}
	}
}
