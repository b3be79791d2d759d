package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("accept: %w", InvalidTransition("request 4 is COMPLETED"))
	timeout := Payment("capture", "gateway call failed", context.DeadlineExceeded)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not_found", err: NotFound("request %d", 1), want: "not_found"},
		{name: "unauthorized", err: Unauthorized("not yours"), want: "unauthorized"},
		{name: "invalid_transition_wrapped", err: wrapped, want: "invalid_transition"},
		{name: "payment", err: PaymentState("authorize", "requires_payment_method", "not authorized"), want: "payment_failure"},
		{name: "payment_timeout", err: timeout, want: "payment_failure"},
		{name: "validation", err: Validation("items required"), want: "validation_failure"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "unknown", err: errors.New("disk full"), want: "internal"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "not_found", err: NotFound("x"), want: http.StatusNotFound},
		{name: "unauthorized", err: Unauthorized("x"), want: http.StatusForbidden},
		{name: "invalid_transition", err: InvalidTransition("x"), want: http.StatusConflict},
		{name: "payment", err: Payment("capture", "declined", nil), want: http.StatusBadRequest},
		{name: "validation", err: Validation("x"), want: http.StatusBadRequest},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPaymentErrorCarriesGatewayStatus(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("complete: %w", PaymentState("capture", "requires_payment_method", "intent not ready for capture"))

	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "requires_payment_method", pe.GatewayStatus)
	assert.Equal(t, "capture", pe.Op)
	assert.ErrorIs(t, err, ErrPaymentFailure)
	assert.Contains(t, err.Error(), "gateway status requires_payment_method")
}

func TestPaymentErrorUnwrapsCause(t *testing.T) {
	t.Parallel()

	err := Payment("cancel", "gateway call failed", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrPaymentFailure)
}

func TestReasonHidesInternalErrors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "internal error", Reason(errors.New("sqlite: database is locked")))
	assert.Equal(t, "request 9 not found", Reason(NotFound("request %d not found", 9)))
	assert.Equal(t, "", Reason(nil))
}
