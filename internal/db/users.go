package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/centromex/shopping-buddy/internal/models"
)

const userColumns = `u.id, u.email, u.first_name, u.last_name, u.telegram_id, u.created_at`

// CreateUser adds a user identity and assigns its id.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	var telegramID any
	if u.TelegramID != 0 {
		telegramID = u.TelegramID
	}

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (email, first_name, last_name, telegram_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Email, u.FirstName, u.LastName, telegramID, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = result.LastInsertId()
	return err
}

// AddCustomer gives the user the customer role.
func (db *DB) AddCustomer(ctx context.Context, u models.User) (*models.Customer, error) {
	result, err := db.conn.ExecContext(ctx, `INSERT INTO customers (user_id) VALUES (?)`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Customer{ID: id, User: u}, nil
}

// AddShopper gives the user the shopper role with a zero balance.
func (db *DB) AddShopper(ctx context.Context, u models.User) (*models.Shopper, error) {
	result, err := db.conn.ExecContext(ctx, `INSERT INTO shoppers (user_id, balance) VALUES (?, ?)`, u.ID, decimal.Zero)
	if err != nil {
		return nil, fmt.Errorf("insert shopper: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Shopper{ID: id, User: u, Balance: decimal.Zero}, nil
}

// LinkTelegram associates a Telegram account with the user registered under email.
func (db *DB) LinkTelegram(ctx context.Context, email string, telegramID int64) error {
	result, err := db.conn.ExecContext(ctx, `UPDATE users SET telegram_id = ? WHERE email = ?`, telegramID, email)
	if err != nil {
		return err
	}
	if err := expectOneRow(result); err != nil {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return db.getCustomer(ctx, `c.id = ?`, id)
}

func (db *DB) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return db.getCustomer(ctx, `u.email = ?`, email)
}

func (db *DB) getCustomer(ctx context.Context, where string, arg any) (*models.Customer, error) {
	var c models.Customer
	row := db.conn.QueryRowContext(ctx,
		`SELECT c.id, `+userColumns+` FROM customers c JOIN users u ON u.id = c.user_id WHERE `+where, arg)

	var telegramID sql.NullInt64
	err := row.Scan(&c.ID, &c.User.ID, &c.User.Email, &c.User.FirstName, &c.User.LastName, &telegramID, &c.User.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.User.TelegramID = telegramID.Int64
	return &c, nil
}

func (db *DB) GetShopper(ctx context.Context, id int64) (*models.Shopper, error) {
	return getShopper(ctx, db.conn, `s.id = ?`, id)
}

func (db *DB) GetShopperByEmail(ctx context.Context, email string) (*models.Shopper, error) {
	return getShopper(ctx, db.conn, `u.email = ?`, email)
}

func (db *DB) GetShopperByTelegramID(ctx context.Context, telegramID int64) (*models.Shopper, error) {
	return getShopper(ctx, db.conn, `u.telegram_id = ?`, telegramID)
}

func getShopper(ctx context.Context, q querier, where string, arg any) (*models.Shopper, error) {
	var s models.Shopper
	row := q.QueryRowContext(ctx,
		`SELECT s.id, s.balance, `+userColumns+` FROM shoppers s JOIN users u ON u.id = s.user_id WHERE `+where, arg)

	var telegramID sql.NullInt64
	err := row.Scan(&s.ID, &s.Balance, &s.User.ID, &s.User.Email, &s.User.FirstName, &s.User.LastName, &telegramID, &s.User.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.User.TelegramID = telegramID.Int64
	return &s, nil
}

// CreditShopper adds amount to the shopper's balance and returns the new balance.
func (tx *Tx) CreditShopper(ctx context.Context, shopperID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	s, err := getShopper(ctx, tx.q, `s.id = ?`, shopperID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := models.RoundMoney(s.Balance.Add(amount))
	if _, err := tx.q.ExecContext(ctx, `UPDATE shoppers SET balance = ? WHERE id = ?`, balance, shopperID); err != nil {
		return decimal.Zero, fmt.Errorf("update balance: %w", err)
	}
	return balance, nil
}
