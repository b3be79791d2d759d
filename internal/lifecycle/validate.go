package lifecycle

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/centromex/shopping-buddy/internal/apperr"
	"github.com/centromex/shopping-buddy/internal/models"
)

const (
	maxItemName        = 100
	maxItemDescription = 500
	maxItemCategory    = 50
	maxAddress         = 500
	maxStoreName       = 200
	maxStoreAddress    = 500
)

// RequestInput is the customer-editable part of a shopping request.
type RequestInput struct {
	Items           []models.Item   `json:"items"`
	DeliveryAddress string          `json:"delivery_address"`
	StoreName       string          `json:"store_name"`
	StoreAddress    string          `json:"store_address"`
	EstimatedPrice  decimal.Decimal `json:"estimated_price"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
}

// normalize trims text fields and rounds amounts to money precision.
func (in RequestInput) normalize() RequestInput {
	out := in
	out.DeliveryAddress = strings.TrimSpace(in.DeliveryAddress)
	out.StoreName = strings.TrimSpace(in.StoreName)
	out.StoreAddress = strings.TrimSpace(in.StoreAddress)
	out.EstimatedPrice = models.RoundMoney(in.EstimatedPrice)
	out.DeliveryFee = models.RoundMoney(in.DeliveryFee)

	out.Items = make([]models.Item, len(in.Items))
	for i, it := range in.Items {
		out.Items[i] = models.Item{
			Name:        strings.TrimSpace(it.Name),
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			Category:    strings.TrimSpace(it.Category),
		}
	}
	return out
}

func (in RequestInput) total() decimal.Decimal {
	return models.RoundMoney(in.EstimatedPrice.Add(in.DeliveryFee))
}

// validate checks a normalized input. Store fields are mandatory once a
// request is being edited.
func (in RequestInput) validate(minFee decimal.Decimal, requireStore bool) error {
	if len(in.Items) == 0 {
		return apperr.Validation("at least one item is required")
	}
	for i, it := range in.Items {
		switch {
		case it.Name == "":
			return apperr.Validation("item %d: name is required", i+1)
		case tooLong(it.Name, maxItemName):
			return apperr.Validation("item %d: name must be at most %d characters", i+1, maxItemName)
		case tooLong(it.Description, maxItemDescription):
			return apperr.Validation("item %d: description must be at most %d characters", i+1, maxItemDescription)
		case tooLong(it.Category, maxItemCategory):
			return apperr.Validation("item %d: category must be at most %d characters", i+1, maxItemCategory)
		case it.Quantity < 1:
			return apperr.Validation("item %d: quantity must be at least 1", i+1)
		}
	}

	if in.DeliveryAddress == "" {
		return apperr.Validation("delivery address is required")
	}
	if tooLong(in.DeliveryAddress, maxAddress) {
		return apperr.Validation("delivery address must be at most %d characters", maxAddress)
	}

	if requireStore && in.StoreName == "" {
		return apperr.Validation("store name is required")
	}
	if requireStore && in.StoreAddress == "" {
		return apperr.Validation("store address is required")
	}
	if tooLong(in.StoreName, maxStoreName) {
		return apperr.Validation("store name must be at most %d characters", maxStoreName)
	}
	if tooLong(in.StoreAddress, maxStoreAddress) {
		return apperr.Validation("store address must be at most %d characters", maxStoreAddress)
	}

	if !in.EstimatedPrice.IsPositive() {
		return apperr.Validation("estimated price must be greater than zero")
	}
	if in.DeliveryFee.LessThan(minFee) {
		return apperr.Validation("delivery fee must be at least %s", models.FormatMoney(minFee))
	}
	return nil
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}
