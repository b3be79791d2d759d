// Package payment is the ledger of pre-authorizations held for shopping
// requests. It owns the local Payment records and is the only component
// that talks to the card gateway.
//
// Local status moves PENDING → AUTHORIZED → COMPLETED, with CANCELLED
// reachable from PENDING or AUTHORIZED and FAILED from any non-terminal
// status. Every gateway call runs under its own timeout and no lock is held
// across it.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/centromex/shopping-buddy/internal/apperr"
	"github.com/centromex/shopping-buddy/internal/db"
	"github.com/centromex/shopping-buddy/internal/gateway"
	"github.com/centromex/shopping-buddy/internal/models"
)

type store interface {
	InsertPayment(ctx context.Context, p *models.Payment) error
	GetPaymentByRequest(ctx context.Context, requestID int64) (*models.Payment, error)
	SwapPaymentStatus(ctx context.Context, requestID int64, from []models.PaymentStatus, to models.PaymentStatus, collectedAt *time.Time) error
}

type Config struct {
	Currency    string
	CallTimeout time.Duration
}

// Ledger records payments and drives the gateway.
type Ledger struct {
	store       store
	gw          gateway.Gateway
	currency    string
	callTimeout time.Duration
	log         *slog.Logger
	now         func() time.Time
}

func New(st store, gw gateway.Gateway, cfg Config, logger *slog.Logger) *Ledger {
	if st == nil || gw == nil {
		panic("payment.New: nil store or gateway")
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:       st,
		gw:          gw,
		currency:    cfg.Currency,
		callTimeout: cfg.CallTimeout,
		log:         logger.With("component", "payment"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateIntent pre-authorizes amount for the request and records a PENDING
// payment. Failures are returned to the caller, which must not keep the
// request. An intent that cannot be recorded is cancelled again.
func (l *Ledger) CreateIntent(ctx context.Context, requestID, customerID int64, amount decimal.Decimal) (*models.Payment, error) {
	amount = models.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, apperr.Validation("payment amount must be positive, got %s", models.FormatMoney(amount))
	}
	minor, err := models.ToMinorUnits(amount)
	if err != nil {
		return nil, apperr.Validation("payment amount: %v", err)
	}

	l.log.Info("creating payment intent", "request_id", requestID, "amount", models.FormatMoney(amount))

	var intent *gateway.Intent
	err = l.call(ctx, func(ctx context.Context) error {
		intent, err = l.gw.CreateIntent(ctx, gateway.CreateParams{
			AmountMinor: minor,
			Currency:    l.currency,
			Description: fmt.Sprintf("Shopping Request #%d", requestID),
			Metadata: map[string]string{
				"shopping_request_id": strconv.FormatInt(requestID, 10),
				"customer_id":         strconv.FormatInt(customerID, 10),
			},
		})
		return err
	})
	if err != nil {
		return nil, apperr.Payment("create", "failed to create payment intent", err)
	}

	p := &models.Payment{
		RequestID:    requestID,
		CustomerID:   customerID,
		Amount:       amount,
		Status:       models.PaymentPending,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		CreatedAt:    l.now(),
	}
	if err := l.store.InsertPayment(ctx, p); err != nil {
		l.log.Error("failed to record payment, releasing intent",
			"request_id", requestID, "intent_id", intent.ID, "error", err)
		l.release(context.WithoutCancel(ctx), requestID, intent.ID)
		return nil, fmt.Errorf("record payment for request %d: %w", requestID, err)
	}

	l.log.Info("payment intent created", "request_id", requestID, "intent_id", intent.ID)
	return p, nil
}

// Authorize confirms with the gateway that funds are held and marks the
// payment AUTHORIZED. Only PENDING payments can be authorized.
func (l *Ledger) Authorize(ctx context.Context, requestID int64) (*models.Payment, error) {
	l.log.Info("authorizing payment", "request_id", requestID)

	p, err := l.load(ctx, "authorize", requestID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentPending {
		return nil, apperr.Payment("authorize",
			fmt.Sprintf("cannot authorize payment in status %s, payment must be PENDING", p.Status), nil)
	}

	intent, err := l.retrieve(ctx, "authorize", p.IntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != gateway.StatusRequiresCapture {
		return nil, apperr.PaymentState("authorize", string(intent.Status), "payment intent is not authorized")
	}

	if err := l.swap(ctx, p, []models.PaymentStatus{models.PaymentPending}, models.PaymentAuthorized, nil); err != nil {
		return nil, err
	}

	l.log.Info("payment authorized", "request_id", requestID, "intent_id", p.IntentID)
	return p, nil
}

// Capture moves the held funds and marks the payment COMPLETED. PENDING is
// accepted as well as AUTHORIZED since not every caller path authorizes
// first. An intent that already succeeded at the gateway is recorded as
// collected without capturing again.
func (l *Ledger) Capture(ctx context.Context, requestID int64) (*models.Payment, error) {
	l.log.Info("capturing payment", "request_id", requestID)

	p, err := l.load(ctx, "capture", requestID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentAuthorized && p.Status != models.PaymentPending {
		return nil, apperr.Payment("capture",
			fmt.Sprintf("cannot capture payment in status %s, payment must be AUTHORIZED or PENDING", p.Status), nil)
	}

	intent, err := l.retrieve(ctx, "capture", p.IntentID)
	if err != nil {
		return nil, err
	}

	switch intent.Status {
	case gateway.StatusRequiresCapture:
		err = l.call(ctx, func(ctx context.Context) error {
			_, err := l.gw.CaptureIntent(ctx, p.IntentID)
			return err
		})
		if err != nil {
			return nil, apperr.Payment("capture", "failed to capture payment intent", err)
		}
	case gateway.StatusSucceeded:
		l.log.Warn("payment intent already captured at gateway, reconciling",
			"request_id", requestID, "intent_id", p.IntentID)
	default:
		return nil, apperr.PaymentState("capture", string(intent.Status), "payment intent is not ready for capture")
	}

	collected := l.now()
	if err := l.swap(ctx, p, []models.PaymentStatus{models.PaymentAuthorized, models.PaymentPending}, models.PaymentCompleted, &collected); err != nil {
		return nil, err
	}

	l.log.Info("payment captured", "request_id", requestID, "intent_id", p.IntentID)
	return p, nil
}

// CancelOrVoid releases the hold. Intents that are held or still awaiting
// the customer are canceled at the gateway; other unsettled gateway states
// are only logged. The local status becomes CANCELLED unless a gateway call
// failed. Captured funds are never released: the error then wraps
// apperr.ErrCollected.
func (l *Ledger) CancelOrVoid(ctx context.Context, requestID int64) (*models.Payment, error) {
	l.log.Info("cancelling payment", "request_id", requestID)

	p, err := l.load(ctx, "cancel", requestID)
	if err != nil {
		return nil, err
	}
	if p.Status == models.PaymentCompleted {
		return nil, &apperr.PaymentError{Op: "cancel", Reason: "payment was already captured", Err: apperr.ErrCollected}
	}
	if p.Status != models.PaymentAuthorized && p.Status != models.PaymentPending {
		return nil, apperr.Payment("cancel",
			fmt.Sprintf("cannot cancel payment in status %s, payment must be AUTHORIZED or PENDING", p.Status), nil)
	}

	intent, err := l.retrieve(ctx, "cancel", p.IntentID)
	if err != nil {
		return nil, err
	}

	switch {
	case intent.Status == gateway.StatusRequiresCapture, intent.Status.AwaitingCustomer():
		err = l.call(ctx, func(ctx context.Context) error {
			_, err := l.gw.CancelIntent(ctx, p.IntentID)
			return err
		})
		if err != nil {
			return nil, &apperr.PaymentError{
				Op: "cancel", GatewayStatus: string(intent.Status),
				Reason: "failed to cancel payment intent", Err: err,
			}
		}
		l.log.Info("payment intent voided", "request_id", requestID, "intent_id", p.IntentID, "gateway_status", intent.Status)
	case intent.Status == gateway.StatusSucceeded:
		l.log.Warn("payment intent already captured at gateway, not cancelling",
			"request_id", requestID, "intent_id", p.IntentID)
		return nil, &apperr.PaymentError{
			Op: "cancel", GatewayStatus: string(intent.Status),
			Reason: "payment intent was already captured", Err: apperr.ErrCollected,
		}
	default:
		l.log.Warn("payment intent does not require cancellation",
			"request_id", requestID, "intent_id", p.IntentID, "gateway_status", intent.Status)
	}

	if err := l.swap(ctx, p, []models.PaymentStatus{models.PaymentAuthorized, models.PaymentPending}, models.PaymentCancelled, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// release cancels an intent that has no local payment record. Failures are
// logged with the intent id so the hold can be voided by hand.
func (l *Ledger) release(ctx context.Context, requestID int64, intentID string) {
	err := l.call(ctx, func(ctx context.Context) error {
		_, err := l.gw.CancelIntent(ctx, intentID)
		return err
	})
	if err != nil {
		l.log.Error("orphaned payment intent needs manual cancellation",
			"request_id", requestID, "intent_id", intentID, "error", err)
		return
	}
	l.log.Warn("orphaned payment intent cancelled", "request_id", requestID, "intent_id", intentID)
}

// MarkFailed records that the payment could not be resolved and needs
// reconciliation. Terminal payments are left untouched.
func (l *Ledger) MarkFailed(ctx context.Context, requestID int64) error {
	err := l.store.SwapPaymentStatus(ctx, requestID,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentAuthorized}, models.PaymentFailed, nil)
	if errors.Is(err, db.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark payment failed for request %d: %w", requestID, err)
	}
	l.log.Warn("payment marked failed for reconciliation", "request_id", requestID)
	return nil
}

// Get returns the payment of a request, or nil if none was recorded.
func (l *Ledger) Get(ctx context.Context, requestID int64) (*models.Payment, error) {
	p, err := l.store.GetPaymentByRequest(ctx, requestID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (l *Ledger) load(ctx context.Context, op string, requestID int64) (*models.Payment, error) {
	p, err := l.store.GetPaymentByRequest(ctx, requestID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Payment(op, fmt.Sprintf("payment not found for shopping request %d", requestID), nil)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (l *Ledger) retrieve(ctx context.Context, op, intentID string) (*gateway.Intent, error) {
	var intent *gateway.Intent
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		intent, err = l.gw.RetrieveIntent(ctx, intentID)
		return err
	})
	if err != nil {
		return nil, apperr.Payment(op, "failed to retrieve payment intent", err)
	}
	return intent, nil
}

// swap applies a status change and mirrors it onto p.
func (l *Ledger) swap(ctx context.Context, p *models.Payment, from []models.PaymentStatus, to models.PaymentStatus, collectedAt *time.Time) error {
	err := l.store.SwapPaymentStatus(ctx, p.RequestID, from, to, collectedAt)
	if errors.Is(err, db.ErrConflict) {
		return apperr.Payment(string(to), "payment changed concurrently", err)
	}
	if err != nil {
		return fmt.Errorf("update payment for request %d: %w", p.RequestID, err)
	}
	p.Status = to
	p.CollectedAt = collectedAt
	return nil
}

// call runs fn with the ledger's per-call gateway timeout.
func (l *Ledger) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()
	return fn(ctx)
}
