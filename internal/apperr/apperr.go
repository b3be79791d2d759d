// Package apperr classifies the failures of lifecycle and payment operations
// into stable kinds that the transport layers map to response codes.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPaymentFailure    = errors.New("payment failure")
	ErrValidation        = errors.New("validation failure")

	// ErrCollected is wrapped by payment errors for funds that were already
	// captured and can no longer be released.
	ErrCollected = errors.New("payment already collected")
)

// Error is a classified error with a human-readable reason.
type Error struct {
	kind   error
	reason string
}

func (e *Error) Error() string { return e.reason }

func (e *Error) Is(target error) bool { return target == e.kind }

func newError(kind error, format string, args ...any) error {
	return &Error{kind: kind, reason: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return newError(ErrUnauthorized, format, args...)
}

func InvalidTransition(format string, args ...any) error {
	return newError(ErrInvalidTransition, format, args...)
}

func Validation(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

// PaymentError reports a failed gateway call or an unexpected payment state.
// GatewayStatus holds the intent status observed at the gateway, if any.
type PaymentError struct {
	Op            string
	GatewayStatus string
	Reason        string
	Err           error
}

func (e *PaymentError) Error() string {
	msg := "payment " + e.Op + ": " + e.Reason
	if e.GatewayStatus != "" {
		msg += " (gateway status " + e.GatewayStatus + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PaymentError) Is(target error) bool { return target == ErrPaymentFailure }

func (e *PaymentError) Unwrap() error { return e.Err }

func (e *PaymentError) Kind() string { return "payment_failure" }

// Payment builds a PaymentError wrapping cause, which may be nil.
func Payment(op, reason string, cause error) error {
	return &PaymentError{Op: op, Reason: reason, Err: cause}
}

// PaymentState builds a PaymentError for an intent found in an unexpected status.
func PaymentState(op, gatewayStatus, reason string) error {
	return &PaymentError{Op: op, GatewayStatus: gatewayStatus, Reason: reason}
}

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"

	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"

	case errors.Is(err, ErrPaymentFailure):
		return "payment_failure"

	case errors.Is(err, ErrValidation):
		return "validation_failure"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK

	case "not_found":
		return http.StatusNotFound

	case "unauthorized":
		return http.StatusForbidden

	case "invalid_transition":
		return http.StatusConflict

	case "payment_failure", "validation_failure", "canceled":
		return http.StatusBadRequest

	case "timeout":
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

// Reason returns the message shown to callers. Internal errors are not
// described to avoid leaking storage details.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if Kind(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}
