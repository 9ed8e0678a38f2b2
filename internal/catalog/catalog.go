package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("product not found")

// Catalog resolves a product id to its current unit price. A missing product
// answers ErrNotFound; the fulfillment layer decides what that means for the
// cart (it skips the entry).
type Catalog interface {
	PriceCents(ctx context.Context, productID string) (int, error)
}

type PGCatalog struct{ DB *pgxpool.Pool }

func (c *PGCatalog) PriceCents(ctx context.Context, productID string) (int, error) {
	var price int
	err := c.DB.QueryRow(ctx, `SELECT price_cents FROM products WHERE id=$1`, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return price, nil
}
