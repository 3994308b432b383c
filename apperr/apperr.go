// Package apperr defines the error kinds shared by the store, the services and
// the HTTP layer. Handlers never pick status codes themselves; they pass the
// error to utils.RespondError which maps the Kind once.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindInvalid
	KindUpstreamFailure
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInvalid:
		return "invalid"
	case KindUpstreamFailure:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// HTTPStatus is the response status used for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalid:
		return http.StatusBadRequest
	case KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind, a caller-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to a lower-level cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error     { return New(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error     { return New(KindConflict, format, args...) }
func Unauthorized(format string, args ...any) *Error { return New(KindUnauthorized, format, args...) }
func Forbidden(format string, args ...any) *Error    { return New(KindForbidden, format, args...) }
func Invalid(format string, args ...any) *Error      { return New(KindInvalid, format, args...) }

// Upstream marks a failure of an external collaborator such as the payment processor.
func Upstream(err error, format string, args ...any) *Error {
	return Wrap(KindUpstreamFailure, err, format, args...)
}

// Internal wraps an unexpected failure. Its message is never shown to callers.
func Internal(err error, format string, args ...any) *Error {
	return Wrap(KindInternal, err, format, args...)
}

// KindOf reports the kind of err. Errors that carry no kind are internal.
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

// PublicMessage is the text safe to return to a client.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "internal server error"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}
