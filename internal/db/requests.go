package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/centromex/shopping-buddy/internal/models"
)

const requestColumns = `id, customer_id, shopper_id, status, delivery_address, latitude, longitude,
		store_name, store_address, estimated_price, delivery_fee, payment_status, version,
		created_at, updated_at`

// CreateRequest stores a new shopping request with its items and assigns
// the generated ids.
func (db *DB) CreateRequest(ctx context.Context, req *models.ShoppingRequest) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateRequest(ctx, req)
	})
}

func (tx *Tx) CreateRequest(ctx context.Context, req *models.ShoppingRequest) error {
	result, err := tx.q.ExecContext(ctx,
		`INSERT INTO shopping_requests (customer_id, shopper_id, status, delivery_address, latitude, longitude,
		        store_name, store_address, estimated_price, delivery_fee, payment_status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		req.CustomerID, req.ShopperID, req.Status, req.DeliveryAddress, req.Latitude, req.Longitude,
		req.StoreName, req.StoreAddress, req.EstimatedPrice, req.DeliveryFee, req.PaymentStatus,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	req.ID = id
	req.Version = 1

	return tx.ReplaceItems(ctx, req.ID, req.Items)
}

// ReplaceItems deletes every item of the request and inserts items in order.
func (tx *Tx) ReplaceItems(ctx context.Context, requestID int64, items []models.Item) error {
	if _, err := tx.q.ExecContext(ctx, `DELETE FROM items WHERE request_id = ?`, requestID); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}

	for i := range items {
		result, err := tx.q.ExecContext(ctx,
			`INSERT INTO items (request_id, position, name, description, quantity, category) VALUES (?, ?, ?, ?, ?, ?)`,
			requestID, i, items[i].Name, items[i].Description, items[i].Quantity, items[i].Category,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		items[i].ID = id
		items[i].RequestID = requestID
	}
	return nil
}

// DeleteRequest removes a request and its items. Payment rows are kept.
func (db *DB) DeleteRequest(ctx context.Context, id int64) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM items WHERE request_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.q.ExecContext(ctx, `DELETE FROM shopping_requests WHERE id = ?`, id)
		return err
	})
}

// SwapRequest writes the mutable header fields of req only if the stored row
// still has the expected status and req's version. On success req.Version is
// advanced; otherwise ErrConflict is returned and nothing is written.
func (db *DB) SwapRequest(ctx context.Context, expected models.RequestStatus, req *models.ShoppingRequest) error {
	return swapRequest(ctx, db.conn, expected, req)
}

func (tx *Tx) SwapRequest(ctx context.Context, expected models.RequestStatus, req *models.ShoppingRequest) error {
	return swapRequest(ctx, tx.q, expected, req)
}

func swapRequest(ctx context.Context, q querier, expected models.RequestStatus, req *models.ShoppingRequest) error {
	result, err := q.ExecContext(ctx,
		`UPDATE shopping_requests
		 SET shopper_id = ?, status = ?, delivery_address = ?, latitude = ?, longitude = ?,
		     store_name = ?, store_address = ?, estimated_price = ?, delivery_fee = ?,
		     payment_status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND status = ? AND version = ?`,
		req.ShopperID, req.Status, req.DeliveryAddress, req.Latitude, req.Longitude,
		req.StoreName, req.StoreAddress, req.EstimatedPrice, req.DeliveryFee,
		req.PaymentStatus, req.UpdatedAt,
		req.ID, expected, req.Version,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}
	req.Version++
	return nil
}

// SetPaymentStatus moves the payment status mirror of a request from `from`
// to `to`. Completed and cancelled requests are never written. ErrConflict
// is returned when no open request with that payment status exists.
func (db *DB) SetPaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE shopping_requests SET payment_status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND payment_status = ? AND status NOT IN (?, ?)`,
		to, at, id, from, models.StatusCompleted, models.StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return expectOneRow(result)
}

// GetRequest retrieves a request and its items by ID
func (db *DB) GetRequest(ctx context.Context, id int64) (*models.ShoppingRequest, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM shopping_requests WHERE id = ?`, id,
	)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	req.Items, err = db.loadItems(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListRequestsByStatus returns requests in the given status, newest first.
func (db *DB) ListRequestsByStatus(ctx context.Context, status models.RequestStatus) ([]models.ShoppingRequest, error) {
	return db.listRequests(ctx,
		`SELECT `+requestColumns+` FROM shopping_requests WHERE status = ? ORDER BY created_at DESC, id DESC`, status)
}

// ListRequestsByCustomer returns every request owned by the customer, newest first.
func (db *DB) ListRequestsByCustomer(ctx context.Context, customerID int64) ([]models.ShoppingRequest, error) {
	return db.listRequests(ctx,
		`SELECT `+requestColumns+` FROM shopping_requests WHERE customer_id = ? ORDER BY created_at DESC, id DESC`, customerID)
}

// ListRequestsByShopper returns requests currently or finally held by the shopper.
func (db *DB) ListRequestsByShopper(ctx context.Context, shopperID int64) ([]models.ShoppingRequest, error) {
	return db.listRequests(ctx,
		`SELECT `+requestColumns+` FROM shopping_requests WHERE shopper_id = ? ORDER BY created_at DESC, id DESC`, shopperID)
}

func (db *DB) listRequests(ctx context.Context, query string, args ...any) ([]models.ShoppingRequest, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var requests []models.ShoppingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the connection before loading items.
	rows.Close()

	for i := range requests {
		items, err := db.loadItems(ctx, requests[i].ID)
		if err != nil {
			return nil, err
		}
		requests[i].Items = items
	}
	return requests, nil
}

func (db *DB) loadItems(ctx context.Context, requestID int64) ([]models.Item, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, request_id, name, description, quantity, category
		 FROM items WHERE request_id = ? ORDER BY position ASC`, requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(&item.ID, &item.RequestID, &item.Name, &item.Description, &item.Quantity, &item.Category); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*models.ShoppingRequest, error) {
	var req models.ShoppingRequest
	var shopperID sql.NullInt64
	var lat, lng sql.NullFloat64

	err := s.Scan(
		&req.ID, &req.CustomerID, &shopperID, &req.Status, &req.DeliveryAddress, &lat, &lng,
		&req.StoreName, &req.StoreAddress, &req.EstimatedPrice, &req.DeliveryFee, &req.PaymentStatus,
		&req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if shopperID.Valid {
		id := shopperID.Int64
		req.ShopperID = &id
	}
	if lat.Valid && lng.Valid {
		req.Latitude = &lat.Float64
		req.Longitude = &lng.Float64
	}
	return &req, nil
}
