package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger backs the ledger with a stocks table. The check and the decrement
// run inside one transaction with the row locked (FOR UPDATE), so two
// concurrent reservations for the same key serialize on the row lock.
type PGLedger struct{ DB *pgxpool.Pool }

func (l *PGLedger) Reserve(ctx context.Context, productID, warehouseID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var available int
	err = tx.QueryRow(ctx, `SELECT available FROM stocks
	                        WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`,
		productID, warehouseID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		available = 0
	} else if err != nil {
		return 0, err
	}
	if available < qty {
		return available, &InsufficientStockError{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Required:    qty,
			Available:   available,
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE stocks SET available = available - $3, updated_at = now()
	                           WHERE product_id=$1 AND warehouse_id=$2`,
		productID, warehouseID, qty); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return available - qty, nil
}

func (l *PGLedger) Release(ctx context.Context, productID, warehouseID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	var available int
	// Upsert so replenishment for a product the warehouse has never held
	// creates the row instead of vanishing.
	err := l.DB.QueryRow(ctx, `
		INSERT INTO stocks(product_id, warehouse_id, available)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, warehouse_id)
		DO UPDATE SET available = stocks.available + EXCLUDED.available, updated_at = now()
		RETURNING available`,
		productID, warehouseID, qty).Scan(&available)
	if err != nil {
		return 0, err
	}
	return available, nil
}

func (l *PGLedger) Query(ctx context.Context, productID, warehouseID string) (int, error) {
	var available int
	err := l.DB.QueryRow(ctx, `SELECT available FROM stocks
	                           WHERE product_id=$1 AND warehouse_id=$2`,
		productID, warehouseID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return available, nil
}
