package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/inventory-core.git/internal/ledger"
	"github.com/ariefcatur/inventory-core.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RestockService applies replenishment events to the ledger. Goods arriving
// at a warehouse show up as StockRestocked events; applying one is a plain
// Release, deduplicated by event id so redelivery cannot double-count.
type RestockService struct {
	Ledger ledger.Ledger
	Redis  *redis.Client
	Log    *zap.Logger
}

// HandleRestock is installed as the consumer handler for the restock topic.
func (s *RestockService) HandleRestock(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != EventStockRestocked {
		return nil // ignore
	}

	var dkey string
	if s.Redis != nil {
		dkey = fmt.Sprintf(redisx.KeyDedup, "restock", env.EventID)
		exists, _ := redisx.Exists(ctx, s.Redis, dkey)
		if exists {
			return nil
		}
	}

	var p StockRestockPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}
	if p.Qty <= 0 {
		s.Log.Warn("dropping restock event with non-positive qty",
			zap.String("event_id", env.EventID),
			zap.String("product_id", p.ProductID),
			zap.Int("qty", p.Qty))
		return nil
	}

	available, err := s.Ledger.Release(ctx, p.ProductID, p.WarehouseID, p.Qty)
	if err != nil {
		// no dedup mark: the redelivered event must still be applied
		return err
	}
	if s.Redis != nil {
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	s.Log.Info("restock applied",
		zap.String("product_id", p.ProductID),
		zap.String("warehouse_id", p.WarehouseID),
		zap.Int("qty", p.Qty),
		zap.Int("available", available))
	return nil
}
