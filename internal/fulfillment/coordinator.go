package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/inventory-core.git/internal/catalog"
	kafkax "github.com/ariefcatur/inventory-core.git/internal/kafka"
	"github.com/ariefcatur/inventory-core.git/internal/ledger"
	"github.com/ariefcatur/inventory-core.git/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart = errors.New("cart is empty")

	// ErrPartialCompensation means the order was cancelled but one or more
	// stock releases failed afterward. Stock and order state disagree until
	// someone reconciles them; this error is never swallowed.
	ErrPartialCompensation = errors.New("stock release incomplete after cancellation")
)

// CartEntry is read-once input. The coordinator never mutates or owns cart
// storage.
type CartEntry struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// OrderStore is what the coordinator needs from persistence; *orders.Store
// satisfies it. MarkCancelled must be atomic: of any concurrent callers for
// one order, exactly one returns nil.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *orders.Order) error
	MarkCancelled(ctx context.Context, orderID string) error
}

// Publisher is satisfied by *kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Coordinator struct {
	Ledger  ledger.Ledger
	Catalog catalog.Catalog
	Store   OrderStore // optional; nil means in-memory only

	// One producer per topic. All optional: nil disables publishing for
	// that event.
	ProducerPlaced    Publisher
	ProducerCancelled Publisher
	ProducerRejected  Publisher

	Log     *zap.Logger
	Service string
}

type pricedEntry struct {
	productID  string
	qty        int
	priceCents int
}

// PlaceOrder converts a cart into a pending order, reserving stock for every
// line item or nothing at all. Entries whose product no longer exists in the
// catalog are skipped, not fatal. Reservations are acquired in ascending
// product-id order so concurrent orders over overlapping product sets cannot
// deadlock in the backing store.
func (c *Coordinator) PlaceOrder(ctx context.Context, userID, warehouseID string, cart []CartEntry, shipping orders.ShippingInfo) (*orders.Order, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}

	entries := make([]pricedEntry, 0, len(cart))
	for _, e := range cart {
		if e.Qty <= 0 {
			return nil, fmt.Errorf("invalid qty %d for product %s", e.Qty, e.ProductID)
		}
		price, err := c.Catalog.PriceCents(ctx, e.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			c.Log.Warn("skipping cart entry for unknown product",
				zap.String("product_id", e.ProductID), zap.String("user_id", userID))
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, pricedEntry{productID: e.ProductID, qty: e.Qty, priceCents: price})
	}
	if len(entries) == 0 {
		return nil, orders.ErrEmptyOrder
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].productID < entries[j].productID })

	granted := make([]orders.Release, 0, len(entries))
	for _, e := range entries {
		if _, err := c.Ledger.Reserve(ctx, e.productID, warehouseID, e.qty); err != nil {
			c.rollback(ctx, warehouseID, granted)
			var stockErr *ledger.InsufficientStockError
			if errors.As(err, &stockErr) {
				c.publishRejected(userID, stockErr)
			}
			return nil, err
		}
		granted = append(granted, orders.Release{ProductID: e.productID, Qty: e.qty})
	}

	items := make([]orders.LineItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, orders.LineItem{ProductID: e.productID, Qty: e.qty, PriceCents: e.priceCents})
	}
	order, err := orders.NewOrder(userID, warehouseID, items, shipping)
	if err != nil {
		c.rollback(ctx, warehouseID, granted)
		return nil, err
	}

	if c.Store != nil {
		if err := c.Store.CreateOrder(ctx, order); err != nil {
			c.rollback(ctx, warehouseID, granted)
			return nil, err
		}
	}

	c.publishPlaced(order)
	return order, nil
}

// CancelOrder transitions the order to cancelled and compensates the ledger.
// When a store is configured, the persisted status flip is the guard against
// duplicate cancellation: callers may hold independent copies of the same
// order, and only the one that wins the flip releases stock. A failed release
// does not stop the remaining releases; every failure is logged and the whole
// batch is surfaced as ErrPartialCompensation.
func (c *Coordinator) CancelOrder(ctx context.Context, order *orders.Order) error {
	if c.Store != nil {
		if err := c.Store.MarkCancelled(ctx, order.ID); err != nil {
			return err
		}
	}

	releases, err := order.Cancel()
	if err != nil {
		return err
	}

	var failed []error
	for _, r := range releases {
		if _, err := c.Ledger.Release(ctx, r.ProductID, order.WarehouseID, r.Qty); err != nil {
			c.Log.Error("stock release failed after cancellation",
				zap.String("order_id", order.ID),
				zap.String("product_id", r.ProductID),
				zap.Int("qty", r.Qty),
				zap.Error(err))
			failed = append(failed, fmt.Errorf("product %s qty %d: %w", r.ProductID, r.Qty, err))
		}
	}

	c.publishCancelled(order, releases)

	if len(failed) > 0 {
		return fmt.Errorf("%w: %w", ErrPartialCompensation, errors.Join(failed...))
	}
	return nil
}

// rollback undoes reservations already granted in a failed PlaceOrder call.
// Best effort: a failure here only gets logged, the original error still
// reaches the caller.
func (c *Coordinator) rollback(ctx context.Context, warehouseID string, granted []orders.Release) {
	for _, g := range granted {
		if _, err := c.Ledger.Release(ctx, g.ProductID, warehouseID, g.Qty); err != nil {
			c.Log.Error("rollback release failed",
				zap.String("product_id", g.ProductID),
				zap.Int("qty", g.Qty),
				zap.Error(err))
		}
	}
}

func (c *Coordinator) publish(p Publisher, eventType, correlationID string, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      c.Service,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(correlationID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (c *Coordinator) publishPlaced(o *orders.Order) {
	items := make([]ItemPrice, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemPrice{ProductID: it.ProductID, Qty: it.Qty, PriceCents: it.PriceCents})
	}
	c.publish(c.ProducerPlaced, EventOrderPlaced, o.ID, OrderPlacedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		WarehouseID: o.WarehouseID,
		Items:       items,
		TotalCents:  o.TotalCents,
	})
}

func (c *Coordinator) publishCancelled(o *orders.Order, releases []orders.Release) {
	released := make([]ItemQty, 0, len(releases))
	for _, r := range releases {
		released = append(released, ItemQty{ProductID: r.ProductID, Qty: r.Qty})
	}
	c.publish(c.ProducerCancelled, EventOrderCancelled, o.ID, OrderCancelledPayload{OrderID: o.ID, Released: released})
}

func (c *Coordinator) publishRejected(userID string, e *ledger.InsufficientStockError) {
	c.publish(c.ProducerRejected, EventStockRejected, e.ProductID, StockRejectedPayload{
		UserID:      userID,
		ProductID:   e.ProductID,
		WarehouseID: e.WarehouseID,
		Required:    e.Required,
		Available:   e.Available,
	})
}
