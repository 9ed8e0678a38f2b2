package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/inventory-core.git/internal/fulfillment"
	"github.com/ariefcatur/inventory-core.git/internal/ledger"
	"github.com/ariefcatur/inventory-core.git/internal/orders"
	"github.com/ariefcatur/inventory-core.git/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

// OrderStore is the slice of persistence the handler reads and advances
// orders through; *orders.Store satisfies it.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	GetStatus(ctx context.Context, orderID string) (orders.Status, error)
	UpdateStatus(ctx context.Context, orderID string, status orders.Status) error
}

type FulfillmentHandler struct {
	Coordinator *fulfillment.Coordinator
	Store       OrderStore
	Ledger      ledger.Ledger
	Redis       *redis.Client
	Warehouse   string // used when the request names no warehouse
}

type ShippingReq struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Comment string `json:"comment"`
}

type PlaceOrderReq struct {
	UserID      string                  `json:"user_id"`
	WarehouseID string                  `json:"warehouse_id"`
	Items       []fulfillment.CartEntry `json:"items"`
	Shipping    ShippingReq             `json:"shipping"`
}

type LineItemResp struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type OrderResp struct {
	OrderID     string         `json:"order_id"`
	UserID      string         `json:"user_id"`
	WarehouseID string         `json:"warehouse_id"`
	Status      string         `json:"status"`
	TotalCents  int            `json:"total_cents"`
	Items       []LineItemResp `json:"items"`
	CreatedAt   time.Time      `json:"created_at"`
}

type StockResp struct {
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
	Available   int    `json:"available"`
}

func (h *FulfillmentHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Put("/orders/{id}/status", h.advanceOrder)
	r.Delete("/orders/{id}", h.cancelOrder)
	r.Get("/stocks/{warehouse}/{product}", h.queryStock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, fulfillment.ErrEmptyCart),
		errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, ledger.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, orders.ErrAlreadyTerminal),
		errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func toOrderResp(o *orders.Order) OrderResp {
	items := make([]LineItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, LineItemResp{ProductID: it.ProductID, Qty: it.Qty, PriceCents: it.PriceCents})
	}
	return OrderResp{
		OrderID:     o.ID,
		UserID:      o.UserID,
		WarehouseID: o.WarehouseID,
		Status:      string(o.Status),
		TotalCents:  o.TotalCents,
		Items:       items,
		CreatedAt:   o.CreatedAt,
	}
}

func (h *FulfillmentHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		return
	}
	warehouse := req.WarehouseID
	if warehouse == "" {
		warehouse = h.Warehouse
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Coordinator.PlaceOrder(ctx, req.UserID, warehouse, req.Items, orders.ShippingInfo{
		Address: req.Shipping.Address,
		Name:    req.Shipping.Name,
		Phone:   req.Shipping.Phone,
		Email:   req.Shipping.Email,
		Comment: req.Shipping.Comment,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, order.ID, order.Status)
	writeJSON(w, http.StatusCreated, toOrderResp(order))
}

func (h *FulfillmentHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// always the full order; the status cache only serves the status route
	order, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order.ID, order.Status)
	writeJSON(w, http.StatusOK, toOrderResp(order))
}

func (h *FulfillmentHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	status, err := h.Store.GetStatus(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, orderID, status)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type AdvanceOrderReq struct {
	Status string `json:"status"`
}

func (h *FulfillmentHandler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}
	var req AdvanceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := order.Advance(orders.Status(req.Status)); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.UpdateStatus(ctx, orderID, order.Status); err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order.ID, order.Status)
	writeJSON(w, http.StatusOK, toOrderResp(order))
}

func (h *FulfillmentHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.Coordinator.CancelOrder(ctx, order); err != nil {
		if errors.Is(err, fulfillment.ErrPartialCompensation) {
			// the order is cancelled but stock is off; the caller must know
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":  err.Error(),
				"status": string(order.Status),
			})
			return
		}
		writeError(w, err)
		return
	}

	h.cacheStatus(ctx, order.ID, order.Status)
	writeJSON(w, http.StatusOK, toOrderResp(order))
}

func (h *FulfillmentHandler) queryStock(w http.ResponseWriter, r *http.Request) {
	warehouse := chi.URLParam(r, "warehouse")
	product := chi.URLParam(r, "product")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	available, err := h.Ledger.Query(ctx, product, warehouse)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StockResp{ProductID: product, WarehouseID: warehouse, Available: available})
}

func (h *FulfillmentHandler) cacheStatus(ctx context.Context, orderID string, status orders.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	body, _ := json.Marshal(map[string]string{"status": string(status)})
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}
