package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ariefcatur/inventory-core.git/internal/catalog"
	"github.com/ariefcatur/inventory-core.git/internal/ledger"
	"github.com/ariefcatur/inventory-core.git/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type fakeCatalog map[string]int

func (f fakeCatalog) PriceCents(ctx context.Context, productID string) (int, error) {
	price, ok := f[productID]
	if !ok {
		return 0, catalog.ErrNotFound
	}
	return price, nil
}

type memStore struct {
	mu       sync.Mutex
	created  []*orders.Order
	statuses map[string]orders.Status
}

func newMemStore() *memStore {
	return &memStore{statuses: make(map[string]orders.Status)}
}

func (s *memStore) CreateOrder(ctx context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, o)
	s.statuses[o.ID] = o.Status
	return nil
}

func (s *memStore) MarkCancelled(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	if status == orders.StatusShipped {
		return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, status, orders.StatusCancelled)
	}
	if status.Terminal() {
		return fmt.Errorf("%w: %s", orders.ErrAlreadyTerminal, status)
	}
	s.statuses[orderID] = orders.StatusCancelled
	return nil
}

// releaseFailLedger simulates a backing store that accepts reservations but
// loses releases.
type releaseFailLedger struct {
	*ledger.MemoryLedger
}

func (l *releaseFailLedger) Release(ctx context.Context, productID, warehouseID string, qty int) (int, error) {
	return 0, errors.New("stock store offline")
}

// orderRecordLedger remembers the sequence of reserved product ids.
type orderRecordLedger struct {
	*ledger.MemoryLedger
	mu       sync.Mutex
	reserved []string
}

func (l *orderRecordLedger) Reserve(ctx context.Context, productID, warehouseID string, qty int) (int, error) {
	l.mu.Lock()
	l.reserved = append(l.reserved, productID)
	l.mu.Unlock()
	return l.MemoryLedger.Reserve(ctx, productID, warehouseID, qty)
}

func newCoordinator(l ledger.Ledger, cat catalog.Catalog, store OrderStore) *Coordinator {
	return &Coordinator{
		Ledger:  l,
		Catalog: cat,
		Store:   store,
		Log:     zap.NewNop(),
		Service: "fulfillment-test",
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	c := newCoordinator(ledger.NewMemoryLedger(), fakeCatalog{}, nil)
	_, err := c.PlaceOrder(context.Background(), "u1", "wh1", nil, orders.ShippingInfo{})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPlaceOrderSuccess(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	l.Set("A", "wh1", 5)
	store := newMemStore()
	c := newCoordinator(l, fakeCatalog{"A": 1200}, store)

	order, err := c.PlaceOrder(ctx, "u1", "wh1", []CartEntry{{ProductID: "A", Qty: 3}}, orders.ShippingInfo{Address: "pier 4"})
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, order.Status)
	assert.Equal(t, 3*1200, order.TotalCents)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 1200, order.Items[0].PriceCents)

	left, err := l.Query(ctx, "A", "wh1")
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	require.Len(t, store.created, 1)
	assert.Equal(t, order.ID, store.created[0].ID)
}

func TestPlaceOrderSkipsUnknownProducts(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	l.Set("A", "wh1", 5)
	c := newCoordinator(l, fakeCatalog{"A": 100}, nil)

	cart := []CartEntry{
		{ProductID: "ghost", Qty: 2}, // deleted from the catalog, skipped
		{ProductID: "A", Qty: 1},
	}
	order, err := c.PlaceOrder(ctx, "u1", "wh1", cart, orders.ShippingInfo{})
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "A", order.Items[0].ProductID)
}

func TestPlaceOrderAllUnknownProducts(t *testing.T) {
	c := newCoordinator(ledger.NewMemoryLedger(), fakeCatalog{}, nil)
	_, err := c.PlaceOrder(context.Background(), "u1", "wh1",
		[]CartEntry{{ProductID: "ghost", Qty: 1}}, orders.ShippingInfo{})
	require.ErrorIs(t, err, orders.ErrEmptyOrder)
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	l.Set("A", "wh1", 5)
	l.Set("B", "wh1", 0)
	c := newCoordinator(l, fakeCatalog{"A": 100, "B": 300}, nil)

	cart := []CartEntry{{ProductID: "A", Qty: 3}, {ProductID: "B", Qty: 1}}
	_, err := c.PlaceOrder(ctx, "u1", "wh1", cart, orders.ShippingInfo{})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "B", stockErr.ProductID)

	// the reservation granted for A was rolled back
	a, _ := l.Query(ctx, "A", "wh1")
	b, _ := l.Query(ctx, "B", "wh1")
	assert.Equal(t, 5, a)
	assert.Equal(t, 0, b)
}

func TestPlaceOrderReservesInAscendingProductOrder(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemoryLedger()
	mem.Set("p1", "wh1", 10)
	mem.Set("p5", "wh1", 10)
	mem.Set("p9", "wh1", 10)
	l := &orderRecordLedger{MemoryLedger: mem}
	c := newCoordinator(l, fakeCatalog{"p1": 1, "p5": 1, "p9": 1}, nil)

	cart := []CartEntry{
		{ProductID: "p9", Qty: 1},
		{ProductID: "p1", Qty: 1},
		{ProductID: "p5", Qty: 1},
	}
	_, err := c.PlaceOrder(ctx, "u1", "wh1", cart, orders.ShippingInfo{})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p5", "p9"}, l.reserved)
}

func TestCancelOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	l.Set("A", "wh1", 5)
	store := newMemStore()
	c := newCoordinator(l, fakeCatalog{"A": 100}, store)

	order, err := c.PlaceOrder(ctx, "u1", "wh1", []CartEntry{{ProductID: "A", Qty: 3}}, orders.ShippingInfo{})
	require.NoError(t, err)
	left, _ := l.Query(ctx, "A", "wh1")
	require.Equal(t, 2, left)

	require.NoError(t, c.CancelOrder(ctx, order))
	assert.Equal(t, orders.StatusCancelled, order.Status)
	assert.Equal(t, orders.StatusCancelled, store.statuses[order.ID])

	restored, _ := l.Query(ctx, "A", "wh1")
	assert.Equal(t, 5, restored)
}

func TestCancelOrderTwice(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	l.Set("A", "wh1", 5)
	c := newCoordinator(l, fakeCatalog{"A": 100}, nil)

	order, err := c.PlaceOrder(ctx, "u1", "wh1", []CartEntry{{ProductID: "A", Qty: 2}}, orders.ShippingInfo{})
	require.NoError(t, err)
	require.NoError(t, c.CancelOrder(ctx, order))

	err = c.CancelOrder(ctx, order)
	require.ErrorIs(t, err, orders.ErrAlreadyTerminal)

	// the second call must not touch stock again
	got, _ := l.Query(ctx, "A", "wh1")
	assert.Equal(t, 5, got)
}

func TestCancelOrderConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	l.Set("A", "wh1", 5)
	store := newMemStore()
	c := newCoordinator(l, fakeCatalog{"A": 100}, store)

	order, err := c.PlaceOrder(ctx, "u1", "wh1", []CartEntry{{ProductID: "A", Qty: 3}}, orders.ShippingInfo{})
	require.NoError(t, err)
	left, _ := l.Query(ctx, "A", "wh1")
	require.Equal(t, 2, left)

	// two callers holding independent copies of the same order, the way two
	// requests each load it from the database
	copy1, copy2 := *order, *order
	var g errgroup.Group
	results := make(chan error, 2)
	for _, o := range []*orders.Order{&copy1, &copy2} {
		o := o
		g.Go(func() error {
			results <- c.CancelOrder(ctx, o)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	won, lost := 0, 0
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, orders.ErrAlreadyTerminal):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	// stock is restored exactly once, never twice
	restored, _ := l.Query(ctx, "A", "wh1")
	assert.Equal(t, 5, restored)
	assert.Equal(t, orders.StatusCancelled, store.statuses[order.ID])
}

func TestCancelShippedOrderRejected(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	l.Set("A", "wh1", 5)
	c := newCoordinator(l, fakeCatalog{"A": 100}, nil)

	order, err := c.PlaceOrder(ctx, "u1", "wh1", []CartEntry{{ProductID: "A", Qty: 1}}, orders.ShippingInfo{})
	require.NoError(t, err)
	require.NoError(t, order.Advance(orders.StatusProcessing))
	require.NoError(t, order.Advance(orders.StatusShipped))

	err = c.CancelOrder(ctx, order)
	require.ErrorIs(t, err, orders.ErrInvalidTransition)

	got, _ := l.Query(ctx, "A", "wh1")
	assert.Equal(t, 4, got)
}

func TestCancelOrderPartialCompensation(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewMemoryLedger()
	mem.Set("A", "wh1", 5)
	c := newCoordinator(mem, fakeCatalog{"A": 100}, nil)

	order, err := c.PlaceOrder(ctx, "u1", "wh1", []CartEntry{{ProductID: "A", Qty: 2}}, orders.ShippingInfo{})
	require.NoError(t, err)

	// swap in a ledger that loses releases
	c.Ledger = &releaseFailLedger{MemoryLedger: mem}
	err = c.CancelOrder(ctx, order)
	require.ErrorIs(t, err, ErrPartialCompensation)

	// the order is cancelled regardless; the caller reconciles stock manually
	assert.Equal(t, orders.StatusCancelled, order.Status)
}

func TestPlaceOrderConcurrentOversubscription(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	l.Set("A", "wh1", 10)
	c := newCoordinator(l, fakeCatalog{"A": 100}, nil)

	var g errgroup.Group
	results := make(chan error, 50)
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := c.PlaceOrder(ctx, "u1", "wh1", []CartEntry{{ProductID: "A", Qty: 1}}, orders.ShippingInfo{})
			results <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	placed, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			placed++
		case errors.Is(err, ledger.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, placed)
	assert.Equal(t, 40, rejected)

	got, _ := l.Query(ctx, "A", "wh1")
	assert.Equal(t, 0, got)
}
