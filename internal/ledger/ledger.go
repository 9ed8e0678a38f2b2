package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// InsufficientStockError names the offending product so callers can report
// exactly which line item sank the order.
type InsufficientStockError struct {
	ProductID   string
	WarehouseID string
	Required    int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s at warehouse %s: required %d, available %d",
		e.ProductID, e.WarehouseID, e.Required, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// Ledger is the single source of truth for available quantity per
// (product, warehouse) key. Reserve performs the availability check and the
// decrement as one atomic step; a stale-read-then-write pair is never allowed.
type Ledger interface {
	// Reserve decrements available stock, failing with ErrInsufficientStock
	// when fewer than qty units are available. Returns the new quantity.
	Reserve(ctx context.Context, productID, warehouseID string, qty int) (int, error)

	// Release increments available stock. There is no upper bound: restocking
	// beyond the original quantity is ordinary replenishment.
	Release(ctx context.Context, productID, warehouseID string, qty int) (int, error)

	// Query reads the current available quantity without side effects.
	Query(ctx context.Context, productID, warehouseID string) (int, error)
}
