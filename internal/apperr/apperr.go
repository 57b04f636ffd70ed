// Package apperr defines the error kinds surfaced by the attendance engine.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and transport layers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindGeofenceRejected
	KindOutsideAllowedHours
	KindExternalDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGeofenceRejected:
		return "geofence_rejected"
	case KindOutsideAllowedHours:
		return "outside_allowed_hours"
	case KindExternalDelivery:
		return "external_delivery"
	default:
		return "internal"
	}
}

// Error is a classified error with a stable machine code and a human message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New returns a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap classifies err. The returned error unwraps to err.
func Wrap(kind Kind, code string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error on Kind and Code so sentinel values compare
// equal to copies carrying extra detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// WithMessage returns a copy of e with a different message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Validation is shorthand for a KindValidation error.
func Validation(code, format string, args ...any) *Error {
	return New(KindValidation, code, fmt.Sprintf(format, args...))
}

// NotFound is shorthand for a KindNotFound error.
func NotFound(code, format string, args ...any) *Error {
	return New(KindNotFound, code, fmt.Sprintf(format, args...))
}

// KindOf reports the Kind of err; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the machine code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "internal"
}

// HTTPStatus maps a Kind to a response status.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGeofenceRejected, KindOutsideAllowedHours:
		return http.StatusForbidden
	case KindExternalDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
