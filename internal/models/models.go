package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusAccepted   RequestStatus = "ACCEPTED"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// Terminal reports whether no further transition is permitted from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentAuthorized PaymentStatus = "AUTHORIZED"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentCancelled || s == PaymentFailed
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentAuthorized, PaymentCompleted, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

// CanMoveTo reports whether a payment in status s may be recorded as next.
// Status only moves forward; repeating the current status is allowed.
func (s PaymentStatus) CanMoveTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	return !s.Terminal() && next.rank() > s.rank()
}

func (s PaymentStatus) rank() int {
	switch s {
	case PaymentPending:
		return 0
	case PaymentAuthorized:
		return 1
	default:
		return 2
	}
}

// ShoppingRequest is a customer's grocery order and the root of its line items.
type ShoppingRequest struct {
	ID              int64           `json:"id"`
	CustomerID      int64           `json:"customer_id"`
	ShopperID       *int64          `json:"shopper_id,omitempty"`
	Status          RequestStatus   `json:"status"`
	Items           []Item          `json:"items"`
	DeliveryAddress string          `json:"delivery_address"`
	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	StoreName       string          `json:"store_name,omitempty"`
	StoreAddress    string          `json:"store_address,omitempty"`
	EstimatedPrice  decimal.Decimal `json:"estimated_price"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int64           `json:"-"`
}

// Total is the amount pre-authorized for the request: items plus delivery.
func (r *ShoppingRequest) Total() decimal.Decimal {
	return RoundMoney(r.EstimatedPrice.Add(r.DeliveryFee))
}

// AssignedTo reports whether shopperID is the request's current shopper.
func (r *ShoppingRequest) AssignedTo(shopperID int64) bool {
	return r.ShopperID != nil && *r.ShopperID == shopperID
}

// Item is a single line of a shopping list.
type Item struct {
	ID          int64  `json:"id"`
	RequestID   int64  `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
	Category    string `json:"category,omitempty"`
}

// Payment tracks the gateway pre-authorization held for one shopping request.
type Payment struct {
	ID           int64           `json:"id"`
	RequestID    int64           `json:"request_id"`
	CustomerID   int64           `json:"customer_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       PaymentStatus   `json:"status"`
	IntentID     string          `json:"intent_id"`
	ClientSecret string          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	CollectedAt  *time.Time      `json:"collected_at,omitempty"`
}

// RequestDetails is a request composed with its parties' names and the
// client-side payment handles. The client secret is only filled in for the
// owning customer.
type RequestDetails struct {
	ShoppingRequest
	CustomerName        string `json:"customer_name,omitempty"`
	ShopperName         string `json:"shopper_name,omitempty"`
	PaymentIntentID     string `json:"payment_intent_id,omitempty"`
	PaymentClientSecret string `json:"payment_client_secret,omitempty"`
}
