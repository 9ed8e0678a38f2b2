package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ariefcatur/inventory-core.git/internal/config"
	"github.com/ariefcatur/inventory-core.git/internal/fulfillment"
	kafkax "github.com/ariefcatur/inventory-core.git/internal/kafka"
	"github.com/ariefcatur/inventory-core.git/internal/ledger"
	"github.com/ariefcatur/inventory-core.git/internal/postgres"
	"github.com/ariefcatur/inventory-core.git/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()

	log, _ := zap.NewProduction()
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &fulfillment.RestockService{
		Ledger: &ledger.PGLedger{DB: db},
		Redis:  rdb,
		Log:    log,
	}

	group := getenv("RESTOCK_GROUP", "restock-svc")
	workers := mustAtoi(os.Getenv("RESTOCK_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, fulfillment.TopicStockRestock, workers, log)

	go func() {
		log.Info("restock consumer started",
			zap.String("group", group),
			zap.String("topic", fulfillment.TopicStockRestock),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleRestock); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
