// Package gateway adapts external card processors to the pre-authorize,
// capture and void operations the payment ledger needs.
package gateway

import (
	"context"
	"errors"
)

// IntentStatus is the processor-side state of a payment intent.
type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusRequiresCapture       IntentStatus = "requires_capture"
	StatusSucceeded             IntentStatus = "succeeded"
	StatusCanceled              IntentStatus = "canceled"
)

// AwaitingCustomer reports whether the customer has not yet authorized the hold.
func (s IntentStatus) AwaitingCustomer() bool {
	switch s {
	case StatusRequiresPaymentMethod, StatusRequiresConfirmation, StatusRequiresAction:
		return true
	}
	return false
}

// ErrIntentNotFound is returned when the processor has no intent with the given id.
var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is the subset of a processor payment intent the ledger relies on.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	AmountMinor  int64
	Currency     string
}

// CreateParams describes a manual-capture pre-authorization.
type CreateParams struct {
	AmountMinor int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Gateway is a card processor. Every call may block on network I/O and
// must honor ctx cancellation.
type Gateway interface {
	CreateIntent(ctx context.Context, p CreateParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CaptureIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) (*Intent, error)
}
