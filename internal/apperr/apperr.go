// Package apperr defines the error taxonomy shared by the console packages
// and the translation of those errors into HTTP status classes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for handling at the HTTP boundary.
type Kind int

const (
	// KindInternal is any failure that does not fit another class.
	KindInternal Kind = iota
	// KindNotFound is an unknown connection id or a nonexistent key.
	KindNotFound
	// KindConfig is a missing or invalid connection configuration.
	KindConfig
	// KindInvalid is a malformed request or a value of the wrong shape.
	KindInvalid
	// KindUpstream is a command the external store rejected or failed.
	KindUpstream
	// KindUnsupportedType is a value type the codec cannot handle.
	KindUnsupportedType
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConfig:
		return "config"
	case KindInvalid:
		return "invalid"
	case KindUpstream:
		return "upstream"
	case KindUnsupportedType:
		return "unsupported_type"
	default:
		return "internal"
	}
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// NotFound returns a KindNotFound error.
func NotFound(op, format string, args ...any) error {
	return newError(KindNotFound, op, nil, format, args...)
}

// Config returns a KindConfig error.
func Config(op, format string, args ...any) error {
	return newError(KindConfig, op, nil, format, args...)
}

// Invalid returns a KindInvalid error.
func Invalid(op, format string, args ...any) error {
	return newError(KindInvalid, op, nil, format, args...)
}

// UnsupportedType returns a KindUnsupportedType error for the given type name.
func UnsupportedType(op, typeName string) error {
	return newError(KindUnsupportedType, op, nil, "unsupported data type: %s", typeName)
}

// Upstream wraps an error returned by the external store. The store's
// message is kept as the user-facing message.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{
		Kind:    KindUpstream,
		Op:      op,
		Message: err.Error(),
		Err:     err,
	}
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status code returned to API callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConfig, KindInvalid, KindUnsupportedType:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the message safe to show to API callers. Unclassified
// errors are replaced with fallback so internal details never leak.
func Message(err error, fallback string) string {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Message != "" {
			return ae.Message
		}
	}
	return fallback
}
