package fulfillment

import (
	"encoding/json"
	"time"
)

const (
	TopicOrderPlaced    = "fulfillment.order.placed"
	TopicOrderCancelled = "fulfillment.order.cancelled"
	TopicStockRejected  = "fulfillment.stock.rejected"
	TopicStockRestock   = "fulfillment.stock.restock"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCancelled = "OrderCancelled"
	EventStockRejected  = "StockRejected"
	EventStockRestocked = "StockRestocked"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id where one exists
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ItemPrice struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type OrderPlacedPayload struct {
	OrderID     string      `json:"order_id"`
	UserID      string      `json:"user_id"`
	WarehouseID string      `json:"warehouse_id"`
	Items       []ItemPrice `json:"items"`
	TotalCents  int         `json:"total_cents"`
}

type OrderCancelledPayload struct {
	OrderID  string    `json:"order_id"`
	Released []ItemQty `json:"released"`
}

type StockRejectedPayload struct {
	UserID      string `json:"user_id"`
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
	Required    int    `json:"required"`
	Available   int    `json:"available"`
}

type StockRestockPayload struct {
	ProductID   string `json:"product_id"`
	WarehouseID string `json:"warehouse_id"`
	Qty         int    `json:"qty"`
}

// Partition key = order_id so every event of one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
