package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

type Store struct{ DB *pgxpool.Pool }

// CreateOrder persists the order and its line items in one transaction.
// Either everything lands or nothing does.
func (s *Store) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, warehouse_id, status, total_cents,
		                   address, name, phone, email, comment, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.UserID, o.WarehouseID, string(o.Status), o.TotalCents,
		o.Shipping.Address, o.Shipping.Name, o.Shipping.Phone, o.Shipping.Email,
		o.Shipping.Comment, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, price_cents)
			VALUES ($1,$2,$3,$4)`,
			o.ID, it.ProductID, it.Qty, it.PriceCents)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	var status string
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, warehouse_id, status, total_cents,
		       address, name, phone, email, comment, created_at, updated_at
		FROM orders WHERE id=$1`, orderID).Scan(
		&o.ID, &o.UserID, &o.WarehouseID, &status, &o.TotalCents,
		&o.Shipping.Address, &o.Shipping.Name, &o.Shipping.Phone, &o.Shipping.Email,
		&o.Shipping.Comment, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)

	rows, err := s.DB.Query(ctx, `SELECT product_id, qty, price_cents
	                              FROM order_items WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) GetStatus(ctx context.Context, orderID string) (Status, error) {
	var status string
	err := s.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(status), nil
}

// MarkCancelled claims the cancellation: the conditional UPDATE moves the
// order from a cancellable status to cancelled, and exactly one of any
// concurrent callers sees a row change. Losers get the error matching the
// status they found, so stock compensation runs at most once per order.
func (s *Store) MarkCancelled(ctx context.Context, orderID string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now()
	                           WHERE id=$1 AND status IN ($3,$4)`,
		orderID, string(StatusCancelled), string(StatusPending), string(StatusProcessing))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = s.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if Status(status) == StatusShipped {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, StatusCancelled)
	}
	return fmt.Errorf("%w: %s", ErrAlreadyTerminal, status)
}

func (s *Store) UpdateStatus(ctx context.Context, orderID string, status Status) error {
	ct, err := s.DB.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`,
		orderID, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOrder removes the line items and then the order row in one
// transaction. Deletion is explicit here, not delegated to a cascade rule in
// the schema.
func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}
