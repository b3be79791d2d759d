package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/centromex/shopping-buddy/internal/apperr"
	"github.com/centromex/shopping-buddy/internal/db"
	"github.com/centromex/shopping-buddy/internal/models"
	"github.com/centromex/shopping-buddy/internal/notify"
)

const (
	// cancelAttempts bounds how often Cancel re-reads a request that another
	// writer changed while the payment was being voided.
	cancelAttempts = 3

	// settleTimeout bounds the writes that record a cancellation once the
	// gateway has answered or timed out. They do not share the caller's
	// deadline.
	settleTimeout = 5 * time.Second
)

// Create stores a new PENDING request and pre-authorizes its total. If the
// pre-authorization fails the request is removed again and the payment
// error is returned.
func (m *Manager) Create(ctx context.Context, a models.Actor, in RequestInput) (*models.RequestDetails, error) {
	if err := authorize(OpCreate, a, nil); err != nil {
		return nil, err
	}
	in = in.normalize()
	if err := in.validate(m.minFee, false); err != nil {
		return nil, err
	}

	m.log.Info("creating shopping request", "customer_id", a.ID)

	now := m.now()
	req := &models.ShoppingRequest{
		CustomerID:      a.ID,
		Status:          models.StatusPending,
		Items:           in.Items,
		DeliveryAddress: in.DeliveryAddress,
		StoreName:       in.StoreName,
		StoreAddress:    in.StoreAddress,
		EstimatedPrice:  in.EstimatedPrice,
		DeliveryFee:     in.DeliveryFee,
		PaymentStatus:   models.PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.locate(ctx, req)

	if err := m.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("store shopping request: %w", err)
	}

	if _, err := m.ledger.CreateIntent(ctx, req.ID, a.ID, req.Total()); err != nil {
		m.log.Error("pre-authorization failed, discarding request", "request_id", req.ID, "error", err)
		if derr := m.store.DeleteRequest(context.WithoutCancel(ctx), req.ID); derr != nil {
			m.log.Error("failed to discard request after pre-authorization failure", "request_id", req.ID, "error", derr)
		}
		return nil, err
	}

	m.announce(ctx, notify.EventCreated, req, nil, a.Email)

	m.log.Info("shopping request created", "request_id", req.ID, "total", models.FormatMoney(req.Total()))
	return m.details(ctx, a, req)
}

// Accept assigns the calling shopper to a PENDING request whose payment is
// authorized.
func (m *Manager) Accept(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(OpAccept, a, req); err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		return nil, apperr.InvalidTransition("shopping request is not in PENDING status")
	}

	p, err := m.ledger.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load payment of request %d: %w", id, err)
	}
	if p == nil || p.Status != models.PaymentAuthorized {
		return nil, apperr.InvalidTransition("payment for shopping request %d is not authorized", id)
	}

	m.log.Info("shopper accepting shopping request", "request_id", id, "shopper_id", a.ID)

	shopperID := a.ID
	req.ShopperID = &shopperID
	req.Status = models.StatusAccepted
	req.PaymentStatus = p.Status
	req.UpdatedAt = m.now()
	if err := m.store.SwapRequest(ctx, models.StatusPending, req); err != nil {
		return nil, swapFailed(err, id)
	}

	m.announce(ctx, notify.EventAccepted, req, req.ShopperID, a.Email)
	return m.details(ctx, a, req)
}

func (m *Manager) StartShopping(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(OpStartShopping, a, req); err != nil {
		return nil, err
	}
	if req.Status != models.StatusAccepted {
		return nil, apperr.InvalidTransition("shopping request must be ACCEPTED to start shopping")
	}

	req.Status = models.StatusInProgress
	req.UpdatedAt = m.now()
	if err := m.store.SwapRequest(ctx, models.StatusAccepted, req); err != nil {
		return nil, swapFailed(err, id)
	}

	m.log.Info("shopping started", "request_id", id, "shopper_id", a.ID)
	m.announce(ctx, notify.EventStarted, req, req.ShopperID, a.Email)
	return m.details(ctx, a, req)
}

// Complete captures the held payment and only then marks the request
// COMPLETED and credits the shopper. A failed capture leaves the request
// IN_PROGRESS so the shopper can retry.
func (m *Manager) Complete(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(OpComplete, a, req); err != nil {
		return nil, err
	}
	if req.Status != models.StatusInProgress {
		return nil, apperr.InvalidTransition("can only complete IN_PROGRESS requests")
	}

	m.log.Info("completing shopping request", "request_id", id, "shopper_id", a.ID)

	if err := m.capture(ctx, id); err != nil {
		m.log.Error("payment capture failed, request stays in progress", "request_id", id, "error", err)
		return nil, err
	}

	total := req.Total()
	req.Status = models.StatusCompleted
	req.PaymentStatus = models.PaymentCompleted
	req.UpdatedAt = m.now()

	err = m.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.SwapRequest(ctx, models.StatusInProgress, req); err != nil {
			return err
		}
		_, err := tx.CreditShopper(ctx, a.ID, total)
		return err
	})
	if err != nil {
		m.log.Error("payment captured but request could not be completed",
			"request_id", id, "shopper_id", a.ID, "error", err)
		return nil, swapFailed(err, id)
	}

	m.log.Info("shopping completed", "request_id", id, "shopper_id", a.ID, "credited", models.FormatMoney(total))
	m.announce(ctx, notify.EventCompleted, req, req.ShopperID, a.Email)
	return m.details(ctx, a, req)
}

// capture collects the payment unless a previous attempt already did.
func (m *Manager) capture(ctx context.Context, id int64) error {
	p, err := m.ledger.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load payment of request %d: %w", id, err)
	}
	if p != nil && p.Status == models.PaymentCompleted {
		m.log.Warn("payment already collected, completing request", "request_id", id)
		return nil
	}
	_, err = m.ledger.Capture(ctx, id)
	return err
}

// Abandon returns the request to the open pool. The payment is untouched.
func (m *Manager) Abandon(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(OpAbandon, a, req); err != nil {
		return nil, err
	}
	if req.Status != models.StatusAccepted && req.Status != models.StatusInProgress {
		return nil, apperr.InvalidTransition("can only abandon ACCEPTED or IN_PROGRESS requests")
	}

	formerShopper := req.ShopperID
	expected := req.Status
	req.ShopperID = nil
	req.Status = models.StatusPending
	req.UpdatedAt = m.now()
	if err := m.store.SwapRequest(ctx, expected, req); err != nil {
		return nil, swapFailed(err, id)
	}

	m.log.Info("shopping request abandoned", "request_id", id, "shopper_id", a.ID)
	m.announce(ctx, notify.EventAbandoned, req, formerShopper, a.Email)
	return m.details(ctx, a, req)
}

// Cancel ends a non-terminal request. The payment hold is released first;
// if the gateway fails, the payment is marked FAILED for reconciliation and
// the cancellation still goes through. A payment that was already captured
// is never released and the request can then only be completed.
func (m *Manager) Cancel(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(OpCancel, a, req); err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, apperr.InvalidTransition("cannot cancel a %s request", req.Status)
	}
	if p, err := m.ledger.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("load payment of request %d: %w", id, err)
	} else if p != nil && p.Status == models.PaymentCompleted {
		return nil, collectedRefusal(id)
	}

	m.log.Info("cancelling shopping request", "request_id", id, "by", a.Email)

	_, voidErr := m.ledger.CancelOrVoid(ctx, id)

	// From here on the outcome is recorded even if the gateway used up the
	// caller's deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	paymentStatus := models.PaymentCancelled
	if voidErr != nil {
		if errors.Is(voidErr, apperr.ErrCollected) || m.collected(ctx, id) {
			m.log.Warn("payment already collected, request not cancelled", "request_id", id, "error", voidErr)
			return nil, collectedRefusal(id)
		}
		m.log.Error("failed to cancel payment, marking for reconciliation", "request_id", id, "error", voidErr)
		if ferr := m.ledger.MarkFailed(ctx, id); ferr != nil {
			m.log.Error("failed to mark payment failed", "request_id", id, "error", ferr)
		}
		paymentStatus = models.PaymentFailed
	}

	for attempt := 1; ; attempt++ {
		expected := req.Status
		req.Status = models.StatusCancelled
		req.PaymentStatus = paymentStatus
		req.UpdatedAt = m.now()

		err := m.store.SwapRequest(ctx, expected, req)
		if err == nil {
			break
		}
		if !errors.Is(err, db.ErrConflict) || attempt == cancelAttempts {
			return nil, swapFailed(err, id)
		}

		// Another writer moved the request while the payment was voided.
		if req, err = m.load(ctx, id); err != nil {
			return nil, err
		}
		if err := authorize(OpCancel, a, req); err != nil {
			return nil, err
		}
		if req.Status.Terminal() {
			return nil, apperr.InvalidTransition("cannot cancel a %s request", req.Status)
		}
	}

	m.log.Info("shopping request cancelled", "request_id", id, "payment_status", paymentStatus)
	m.announce(ctx, notify.EventCancelled, req, req.ShopperID, a.Email)
	return m.details(ctx, a, req)
}

// collected reports whether the ledger shows the payment of id as captured.
func (m *Manager) collected(ctx context.Context, id int64) bool {
	p, err := m.ledger.Get(ctx, id)
	if err != nil {
		m.log.Error("failed to reload payment", "request_id", id, "error", err)
		return false
	}
	return p != nil && p.Status == models.PaymentCompleted
}

func collectedRefusal(id int64) error {
	return apperr.InvalidTransition("payment for shopping request %d was already collected, it can only be completed", id)
}

// Update replaces the editable fields and the whole item list of a PENDING
// request. The total must stay equal to the amount already pre-authorized.
func (m *Manager) Update(ctx context.Context, a models.Actor, id int64, in RequestInput) (*models.RequestDetails, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(OpUpdate, a, req); err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		return nil, apperr.InvalidTransition("can only edit shopping requests in PENDING status")
	}

	in = in.normalize()
	if err := in.validate(m.minFee, true); err != nil {
		return nil, err
	}

	held := req.Total()
	if p, err := m.ledger.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("load payment of request %d: %w", id, err)
	} else if p != nil {
		held = p.Amount
	}
	if !in.total().Equal(held) {
		return nil, apperr.Validation("items price plus delivery fee must stay %s, the amount already authorized",
			models.FormatMoney(held))
	}

	req.Items = in.Items
	req.DeliveryAddress = in.DeliveryAddress
	req.StoreName = in.StoreName
	req.StoreAddress = in.StoreAddress
	req.EstimatedPrice = in.EstimatedPrice
	req.DeliveryFee = in.DeliveryFee
	req.Latitude, req.Longitude = nil, nil
	req.UpdatedAt = m.now()
	m.locate(ctx, req)

	err = m.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.SwapRequest(ctx, models.StatusPending, req); err != nil {
			return err
		}
		return tx.ReplaceItems(ctx, req.ID, req.Items)
	})
	if err != nil {
		return nil, swapFailed(err, id)
	}

	m.log.Info("shopping request updated", "request_id", id, "items", len(req.Items))
	m.announce(ctx, notify.EventUpdated, req, req.ShopperID, a.Email)
	return m.details(ctx, a, req)
}

// UpdatePaymentStatus mirrors a payment status onto its request. Completed
// and cancelled requests keep their payment status, and the status never
// moves backwards.
func (m *Manager) UpdatePaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) error {
	if !status.Valid() {
		return apperr.Validation("unknown payment status %q", status)
	}
	req, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return apperr.InvalidTransition("cannot change the payment status of a %s request", req.Status)
	}
	if !req.PaymentStatus.CanMoveTo(status) {
		return apperr.InvalidTransition("payment status cannot move from %s to %s", req.PaymentStatus, status)
	}

	if err := m.store.SetPaymentStatus(ctx, id, req.PaymentStatus, status, m.now()); err != nil {
		return swapFailed(err, id)
	}
	m.log.Info("payment status updated", "request_id", id, "payment_status", status)
	return nil
}

// AuthorizePayment handles the card confirmation callback: the ledger checks
// the hold with the gateway and the request mirrors the new status.
func (m *Manager) AuthorizePayment(ctx context.Context, id int64) (*models.ShoppingRequest, error) {
	if _, err := m.load(ctx, id); err != nil {
		return nil, err
	}
	p, err := m.ledger.Authorize(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.UpdatePaymentStatus(ctx, id, p.Status); err != nil {
		return nil, err
	}
	return m.load(ctx, id)
}

// locate fills in coordinates for the delivery address when they resolve.
func (m *Manager) locate(ctx context.Context, req *models.ShoppingRequest) {
	lat, lng, ok := m.geo.Resolve(ctx, req.DeliveryAddress)
	if !ok {
		return
	}
	req.Latitude, req.Longitude = &lat, &lng
}
