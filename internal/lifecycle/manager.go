// Package lifecycle drives shopping requests through their states and
// keeps them consistent with the payment held for each one.
//
// Every state write is a compare-and-swap on the stored status and version,
// so two callers racing on the same request cannot both win. Payment calls
// happen outside any store transaction; each transition that touches the
// payment commits its local write only after the ledger has answered.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/centromex/shopping-buddy/internal/apperr"
	"github.com/centromex/shopping-buddy/internal/db"
	"github.com/centromex/shopping-buddy/internal/geocode"
	"github.com/centromex/shopping-buddy/internal/models"
	"github.com/centromex/shopping-buddy/internal/notify"
)

// Store is the persistence used by the Manager. *db.DB implements it.
type Store interface {
	CreateRequest(ctx context.Context, req *models.ShoppingRequest) error
	DeleteRequest(ctx context.Context, id int64) error
	GetRequest(ctx context.Context, id int64) (*models.ShoppingRequest, error)
	ListRequestsByStatus(ctx context.Context, status models.RequestStatus) ([]models.ShoppingRequest, error)
	ListRequestsByCustomer(ctx context.Context, customerID int64) ([]models.ShoppingRequest, error)
	ListRequestsByShopper(ctx context.Context, shopperID int64) ([]models.ShoppingRequest, error)
	SwapRequest(ctx context.Context, expected models.RequestStatus, req *models.ShoppingRequest) error
	SetPaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus, at time.Time) error
	WithTx(ctx context.Context, fn func(tx *db.Tx) error) error

	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetShopper(ctx context.Context, id int64) (*models.Shopper, error)
	GetShopperByEmail(ctx context.Context, email string) (*models.Shopper, error)
	GetShopperByTelegramID(ctx context.Context, telegramID int64) (*models.Shopper, error)
	LinkTelegram(ctx context.Context, email string, telegramID int64) error
}

// Ledger is the payment side of the lifecycle. *payment.Ledger implements it.
type Ledger interface {
	CreateIntent(ctx context.Context, requestID, customerID int64, amount decimal.Decimal) (*models.Payment, error)
	Authorize(ctx context.Context, requestID int64) (*models.Payment, error)
	Capture(ctx context.Context, requestID int64) (*models.Payment, error)
	CancelOrVoid(ctx context.Context, requestID int64) (*models.Payment, error)
	MarkFailed(ctx context.Context, requestID int64) error
	Get(ctx context.Context, requestID int64) (*models.Payment, error)
}

// Dispatcher delivers notices without reporting failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, n notify.Notice)
}

type Config struct {
	MinDeliveryFee decimal.Decimal
}

type Manager struct {
	store    Store
	ledger   Ledger
	geo      geocode.Geocoder
	notifier Dispatcher
	minFee   decimal.Decimal
	log      *slog.Logger
	now      func() time.Time
}

func NewManager(store Store, ledger Ledger, geo geocode.Geocoder, notifier Dispatcher, cfg Config, logger *slog.Logger) *Manager {
	if geo == nil {
		geo = geocode.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewDispatcher(logger)
	}
	return &Manager{
		store:    store,
		ledger:   ledger,
		geo:      geo,
		notifier: notifier,
		minFee:   models.RoundMoney(cfg.MinDeliveryFee),
		log:      logger.With("component", "lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ResolveActor finds the customer or shopper behind an email.
func (m *Manager) ResolveActor(ctx context.Context, role models.Role, email string) (models.Actor, error) {
	switch role {
	case models.RoleCustomer:
		c, err := m.store.GetCustomerByEmail(ctx, email)
		if errors.Is(err, db.ErrNotFound) {
			return models.Actor{}, apperr.NotFound("customer not found with email: %s", email)
		}
		if err != nil {
			return models.Actor{}, err
		}
		return models.CustomerActor(*c), nil

	case models.RoleShopper:
		s, err := m.store.GetShopperByEmail(ctx, email)
		if errors.Is(err, db.ErrNotFound) {
			return models.Actor{}, apperr.NotFound("shopper not found with email: %s", email)
		}
		if err != nil {
			return models.Actor{}, err
		}
		return models.ShopperActor(*s), nil
	}
	return models.Actor{}, apperr.Unauthorized("unknown role %q", role)
}

// ShopperByTelegram finds the shopper who linked telegramID.
func (m *Manager) ShopperByTelegram(ctx context.Context, telegramID int64) (models.Actor, error) {
	s, err := m.store.GetShopperByTelegramID(ctx, telegramID)
	if errors.Is(err, db.ErrNotFound) {
		return models.Actor{}, apperr.NotFound("no shopper linked to telegram user %d", telegramID)
	}
	if err != nil {
		return models.Actor{}, err
	}
	return models.ShopperActor(*s), nil
}

// LinkShopperChat attaches a Telegram user to the shopper with email.
func (m *Manager) LinkShopperChat(ctx context.Context, email string, telegramID int64) error {
	if _, err := m.ResolveActor(ctx, models.RoleShopper, email); err != nil {
		return err
	}
	if err := m.store.LinkTelegram(ctx, email, telegramID); err != nil {
		return fmt.Errorf("link telegram user %d: %w", telegramID, err)
	}
	m.log.Info("shopper linked telegram chat", "email", email, "telegram_id", telegramID)
	return nil
}

// Get returns a request with its payment handles.
func (m *Manager) Get(ctx context.Context, a models.Actor, id int64) (*models.RequestDetails, error) {
	req, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(OpGet, a, req); err != nil {
		return nil, err
	}
	return m.details(ctx, a, req)
}

// ListPending returns the open pool, newest first.
func (m *Manager) ListPending(ctx context.Context, a models.Actor) ([]models.RequestDetails, error) {
	if err := authorize(OpListPending, a, nil); err != nil {
		return nil, err
	}
	reqs, err := m.store.ListRequestsByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return m.detailsList(ctx, a, reqs)
}

func (m *Manager) ListForCustomer(ctx context.Context, a models.Actor) ([]models.RequestDetails, error) {
	if err := authorize(OpListForCustomer, a, nil); err != nil {
		return nil, err
	}
	reqs, err := m.store.ListRequestsByCustomer(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list requests of customer %d: %w", a.ID, err)
	}
	return m.detailsList(ctx, a, reqs)
}

func (m *Manager) ListForShopper(ctx context.Context, a models.Actor) ([]models.RequestDetails, error) {
	if err := authorize(OpListForShopper, a, nil); err != nil {
		return nil, err
	}
	reqs, err := m.store.ListRequestsByShopper(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list requests of shopper %d: %w", a.ID, err)
	}
	return m.detailsList(ctx, a, reqs)
}

// ShopperBalance returns the amount credited to the calling shopper.
func (m *Manager) ShopperBalance(ctx context.Context, a models.Actor) (decimal.Decimal, error) {
	if err := authorize(OpShopperBalance, a, nil); err != nil {
		return decimal.Zero, err
	}
	s, err := m.store.GetShopper(ctx, a.ID)
	if errors.Is(err, db.ErrNotFound) {
		return decimal.Zero, apperr.NotFound("shopper %d not found", a.ID)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return s.Balance, nil
}

func (m *Manager) load(ctx context.Context, id int64) (*models.ShoppingRequest, error) {
	req, err := m.store.GetRequest(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("shopping request not found with ID: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load shopping request %d: %w", id, err)
	}
	return req, nil
}

func (m *Manager) detailsList(ctx context.Context, a models.Actor, reqs []models.ShoppingRequest) ([]models.RequestDetails, error) {
	out := make([]models.RequestDetails, 0, len(reqs))
	for i := range reqs {
		d, err := m.details(ctx, a, &reqs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// details composes req with party names and, for its owner, the payment
// handles needed to confirm the card on the client.
func (m *Manager) details(ctx context.Context, a models.Actor, req *models.ShoppingRequest) (*models.RequestDetails, error) {
	d := &models.RequestDetails{ShoppingRequest: *req}

	if c, err := m.store.GetCustomer(ctx, req.CustomerID); err == nil {
		d.CustomerName = c.User.DisplayName()
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if req.ShopperID != nil {
		if s, err := m.store.GetShopper(ctx, *req.ShopperID); err == nil {
			d.ShopperName = s.User.DisplayName()
		} else if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}

	p, err := m.ledger.Get(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment of request %d: %w", req.ID, err)
	}
	if p != nil {
		d.PaymentIntentID = p.IntentID
		if a.IsCustomer(req.CustomerID) {
			d.PaymentClientSecret = p.ClientSecret
		}
	}
	return d, nil
}

// announce builds the notice for event and hands it to the dispatcher.
// Recipient lookups that fail are logged and the notice is dropped.
func (m *Manager) announce(ctx context.Context, event notify.Event, req *models.ShoppingRequest, shopperID *int64, initiator string) {
	n := notify.Notice{Event: event, Request: *req, Initiator: initiator}

	c, err := m.store.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		m.log.Error("notification skipped, customer lookup failed", "event", event, "request_id", req.ID, "error", err)
		return
	}
	n.Customer = notify.RecipientFor(models.RoleCustomer, c.User)

	if shopperID != nil {
		s, err := m.store.GetShopper(ctx, *shopperID)
		if err != nil {
			m.log.Error("notification skipped, shopper lookup failed", "event", event, "request_id", req.ID, "error", err)
			return
		}
		r := notify.RecipientFor(models.RoleShopper, s.User)
		n.Shopper = &r
	}

	m.notifier.Dispatch(ctx, n)
}

// swapFailed turns a lost compare-and-swap into the caller-facing error.
func swapFailed(err error, id int64) error {
	if errors.Is(err, db.ErrConflict) {
		return apperr.InvalidTransition("shopping request %d was changed concurrently", id)
	}
	return fmt.Errorf("update shopping request %d: %w", id, err)
}
