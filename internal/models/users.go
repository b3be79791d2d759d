package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the identity shared by customers and shoppers
type User struct {
	ID         int64
	Email      string
	FirstName  string
	LastName   string
	TelegramID int64 // 0 when the user has not linked a chat
	CreatedAt  time.Time
}

func (u User) DisplayName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Customer struct {
	ID   int64
	User User
}

// Shopper fulfills requests and is credited on completed ones
type Shopper struct {
	ID      int64
	User    User
	Balance decimal.Decimal
}
