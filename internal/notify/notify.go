// Package notify tells customers and shoppers about lifecycle events.
// Delivery is best-effort: a failing backend is logged and never changes the
// outcome of the operation that triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/centromex/shopping-buddy/internal/models"
)

type Event string

const (
	EventCreated   Event = "created"
	EventAccepted  Event = "accepted"
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
	EventAbandoned Event = "abandoned"
	EventCancelled Event = "cancelled"
	EventUpdated   Event = "updated"
)

// Recipient is a party of a request as far as notifications care.
type Recipient struct {
	Role       models.Role
	Name       string
	Email      string
	TelegramID int64
}

func RecipientFor(role models.Role, u models.User) Recipient {
	return Recipient{Role: role, Name: u.DisplayName(), Email: u.Email, TelegramID: u.TelegramID}
}

// Notice describes one lifecycle event. Shopper is nil when no shopper is
// involved. Initiator is the email of the caller who caused the event.
type Notice struct {
	Event     Event
	Request   models.ShoppingRequest
	Customer  Recipient
	Shopper   *Recipient
	Initiator string
}

// Notifier delivers a notice to one recipient.
type Notifier interface {
	Notify(ctx context.Context, to Recipient, n Notice) error
}

// Announcer is implemented by backends that also publish open requests to
// every shopper, such as a shared Telegram channel.
type Announcer interface {
	Announce(ctx context.Context, n Notice) error
}

// Recipients returns who should hear about n.
func Recipients(n Notice) []Recipient {
	switch n.Event {
	case EventCreated, EventStarted, EventAbandoned:
		return []Recipient{n.Customer}

	case EventAccepted, EventCompleted:
		if n.Shopper == nil {
			return []Recipient{n.Customer}
		}
		return []Recipient{n.Customer, *n.Shopper}

	case EventUpdated:
		if n.Shopper == nil {
			return nil
		}
		return []Recipient{*n.Shopper}

	case EventCancelled:
		var out []Recipient
		if n.Customer.Email != n.Initiator {
			out = append(out, n.Customer)
		}
		if n.Shopper != nil && n.Shopper.Email != n.Initiator {
			out = append(out, *n.Shopper)
		}
		return out

	default:
		return nil
	}
}

// Dispatcher fans notices out to every configured backend.
type Dispatcher struct {
	backends []Notifier
	log      *slog.Logger
}

func NewDispatcher(logger *slog.Logger, backends ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{backends: backends, log: logger.With("component", "notify")}
}

// Dispatch delivers n to its recipients on every backend. Errors and panics
// are logged and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notice) {
	recipients := Recipients(n)

	for _, b := range d.backends {
		for _, to := range recipients {
			if err := d.safely(func() error { return b.Notify(ctx, to, n) }); err != nil {
				d.log.Error("notification failed",
					"event", n.Event, "request_id", n.Request.ID, "recipient", to.Email, "error", err)
			}
		}

		if a, ok := b.(Announcer); ok && announces(n.Event) {
			if err := d.safely(func() error { return a.Announce(ctx, n) }); err != nil {
				d.log.Error("announcement failed", "event", n.Event, "request_id", n.Request.ID, "error", err)
			}
		}
	}
}

// announces reports whether the event puts a request (back) on the open list.
func announces(e Event) bool {
	return e == EventCreated || e == EventAbandoned
}

func (d *Dispatcher) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return fn()
}
