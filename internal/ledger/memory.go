package ledger

import (
	"context"
	"sync"
)

type stockKey struct {
	productID   string
	warehouseID string
}

type stockEntry struct {
	mu        sync.Mutex
	available int
}

// MemoryLedger keeps quantities in process. Each (product, warehouse) key has
// its own mutex so contention on one product does not serialize the rest; the
// outer mutex only guards the map itself.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[stockKey]*stockEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[stockKey]*stockEntry)}
}

func (l *MemoryLedger) entry(productID, warehouseID string) *stockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := stockKey{productID, warehouseID}
	e, ok := l.entries[k]
	if !ok {
		e = &stockEntry{}
		l.entries[k] = e
	}
	return e
}

// Set overwrites the available quantity for a key. Intended for seeding
// initial stock; not part of the Ledger interface.
func (l *MemoryLedger) Set(productID, warehouseID string, qty int) {
	e := l.entry(productID, warehouseID)
	e.mu.Lock()
	e.available = qty
	e.mu.Unlock()
}

func (l *MemoryLedger) Reserve(ctx context.Context, productID, warehouseID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	e := l.entry(productID, warehouseID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.available < qty {
		return e.available, &InsufficientStockError{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Required:    qty,
			Available:   e.available,
		}
	}
	e.available -= qty
	return e.available, nil
}

func (l *MemoryLedger) Release(ctx context.Context, productID, warehouseID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	e := l.entry(productID, warehouseID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available += qty
	return e.available, nil
}

func (l *MemoryLedger) Query(ctx context.Context, productID, warehouseID string) (int, error) {
	e := l.entry(productID, warehouseID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available, nil
}
