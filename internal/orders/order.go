package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyOrder        = errors.New("order has no line items")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyTerminal   = errors.New("order already in terminal status")
)

// LineItem captures quantity and unit price at order time. The price never
// changes afterward, so historical order value is insulated from catalog
// price updates.
type LineItem struct {
	ProductID  string
	Qty        int
	PriceCents int
}

type ShippingInfo struct {
	Address string
	Name    string
	Phone   string
	Email   string
	Comment string
}

// Release is a (product, quantity) pair owed back to the stock ledger after
// cancellation. The aggregate computes the list; the coordinator applies it.
type Release struct {
	ProductID string
	Qty       int
}

type Order struct {
	ID          string
	UserID      string
	WarehouseID string
	Status      Status
	TotalCents  int
	Items       []LineItem
	Shipping    ShippingInfo
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewOrder(userID, warehouseID string, items []LineItem, shipping ShippingInfo) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	total := 0
	for _, it := range items {
		if it.Qty <= 0 {
			return nil, fmt.Errorf("invalid qty %d for product %s", it.Qty, it.ProductID)
		}
		total += it.Qty * it.PriceCents
	}
	now := time.Now().UTC()
	return &Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		WarehouseID: warehouseID,
		Status:      StatusPending,
		TotalCents:  total,
		Items:       items,
		Shipping:    shipping,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Advance moves the order along the forward path. Cancellation is not an
// Advance target: it must go through Cancel so reserved stock gets released.
func (o *Order) Advance(next Status) error {
	if o.Status.Terminal() {
		// a terminal source is also an invalid transition, so callers
		// matching either sentinel catch it
		return fmt.Errorf("%w: %w: %s", ErrInvalidTransition, ErrAlreadyTerminal, o.Status)
	}
	if next == StatusCancelled || !CanTransition(o.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel flips the order to cancelled and returns what the ledger is owed.
// The aggregate stays free of ledger dependencies: applying the releases is
// the caller's job.
func (o *Order) Cancel() ([]Release, error) {
	if o.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyTerminal, o.Status)
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusCancelled)
	}
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now().UTC()
	releases := make([]Release, 0, len(o.Items))
	for _, it := range o.Items {
		releases = append(releases, Release{ProductID: it.ProductID, Qty: it.Qty})
	}
	return releases, nil
}
