// Package apperr defines the error kinds surfaced by services and mapped to
// HTTP statuses by the handlers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("not authorized")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrGateway    = errors.New("payment gateway error")
	ErrDelivery   = errors.New("notification delivery failed")
)

// Error carries a user-facing message alongside its kind. Payload holds
// diagnostic data (e.g. a gateway error body) safe to return to the caller.
type Error struct {
	Kind    error
	Message string
	Payload any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func Auth(format string, args ...any) error {
	return &Error{Kind: ErrAuth, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Gateway wraps a payment provider failure. payload is forwarded to the
// client for diagnostics and must never contain credentials.
func Gateway(message string, payload any) error {
	return &Error{Kind: ErrGateway, Message: message, Payload: payload}
}

// Message returns the user-facing message of err, falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// PayloadOf returns the diagnostic payload attached to err, if any.
func PayloadOf(err error) any {
	var e *Error
	if errors.As(err, &e) {
		return e.Payload
	}
	return nil
}
