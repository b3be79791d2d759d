package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/centromex/shopping-buddy/internal/models"
)

// InsertPayment stores a new payment row and assigns its id.
func (db *DB) InsertPayment(ctx context.Context, p *models.Payment) error {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO payments (request_id, customer_id, amount, status, intent_id, client_secret, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.RequestID, p.CustomerID, p.Amount, p.Status, p.IntentID, p.ClientSecret, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// GetPaymentByRequest returns the payment held for a shopping request.
func (db *DB) GetPaymentByRequest(ctx context.Context, requestID int64) (*models.Payment, error) {
	var p models.Payment
	var collectedAt sql.NullTime

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, request_id, customer_id, amount, status, intent_id, client_secret, created_at, collected_at
		 FROM payments WHERE request_id = ?`, requestID,
	).Scan(
		&p.ID, &p.RequestID, &p.CustomerID, &p.Amount, &p.Status, &p.IntentID, &p.ClientSecret,
		&p.CreatedAt, &collectedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if collectedAt.Valid {
		p.CollectedAt = &collectedAt.Time
	}
	return &p, nil
}

// SwapPaymentStatus moves the payment of requestID to status `to` if its
// current status is one of `from`. collectedAt is written as given.
func (db *DB) SwapPaymentStatus(ctx context.Context, requestID int64, from []models.PaymentStatus, to models.PaymentStatus, collectedAt *time.Time) error {
	if len(from) == 0 {
		return fmt.Errorf("swap payment status: no source status")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{to, collectedAt, requestID}
	for _, s := range from {
		args = append(args, s)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE payments SET status = ?, collected_at = ?
		 WHERE request_id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return expectOneRow(result)
}
