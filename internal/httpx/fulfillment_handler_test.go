package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ariefcatur/inventory-core.git/internal/ledger"
	"github.com/ariefcatur/inventory-core.git/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
}

func newFakeStore(os ...*orders.Order) *fakeStore {
	s := &fakeStore{orders: make(map[string]*orders.Order)}
	for _, o := range os {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetStatus(ctx context.Context, orderID string) (orders.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return "", orders.ErrNotFound
	}
	return o.Status, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, orderID string, status orders.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	o.Status = status
	return nil
}

func testOrder(t *testing.T) *orders.Order {
	t.Helper()
	o, err := orders.NewOrder("u1", "wh1", []orders.LineItem{
		{ProductID: "A", Qty: 2, PriceCents: 300},
	}, orders.ShippingInfo{Address: "pier 4"})
	require.NoError(t, err)
	return o
}

func newTestHandler(store OrderStore) (*FulfillmentHandler, http.Handler) {
	h := &FulfillmentHandler{
		Store:     store,
		Ledger:    ledger.NewMemoryLedger(),
		Warehouse: "wh1",
	}
	r := NewRouter()
	h.Register(r)
	return h, r
}

func getJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestGetOrderAlwaysFullShape(t *testing.T) {
	o := testOrder(t)
	_, router := newTestHandler(newFakeStore(o))

	// repeated reads must keep the same response shape
	for i := 0; i < 2; i++ {
		rec, body := getJSON(t, router, http.MethodGet, "/orders/"+o.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, o.ID, body["order_id"])
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, float64(600), body["total_cents"])
		require.Len(t, body["items"], 1)
	}
}

func TestGetOrderStatusRoute(t *testing.T) {
	o := testOrder(t)
	_, router := newTestHandler(newFakeStore(o))

	rec, body := getJSON(t, router, http.MethodGet, "/orders/"+o.ID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "pending"}, body)
}

func TestGetOrderNotFound(t *testing.T) {
	_, router := newTestHandler(newFakeStore())

	rec, _ := getJSON(t, router, http.MethodGet, "/orders/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = getJSON(t, router, http.MethodGet, "/orders/nope/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdvanceOrderRoute(t *testing.T) {
	o := testOrder(t)
	store := newFakeStore(o)
	_, router := newTestHandler(store)

	rec, body := getJSON(t, router, http.MethodPut, "/orders/"+o.ID+"/status", `{"status":"processing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "processing", body["status"])

	got, err := store.GetStatus(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, got)

	// skipping ahead is rejected
	rec, _ = getJSON(t, router, http.MethodPut, "/orders/"+o.ID+"/status", `{"status":"delivered"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// cancellation is not an advance target
	rec, _ = getJSON(t, router, http.MethodPut, "/orders/"+o.ID+"/status", `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueryStockRoute(t *testing.T) {
	h, router := newTestHandler(newFakeStore())
	h.Ledger.(*ledger.MemoryLedger).Set("A", "wh1", 7)

	rec, body := getJSON(t, router, http.MethodGet, "/stocks/wh1/A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["available"])
	assert.Equal(t, "A", body["product_id"])
	assert.Equal(t, "wh1", body["warehouse_id"])
}
