package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/inventory-core.git/internal/catalog"
	"github.com/ariefcatur/inventory-core.git/internal/config"
	"github.com/ariefcatur/inventory-core.git/internal/fulfillment"
	"github.com/ariefcatur/inventory-core.git/internal/httpx"
	kafkax "github.com/ariefcatur/inventory-core.git/internal/kafka"
	"github.com/ariefcatur/inventory-core.git/internal/ledger"
	"github.com/ariefcatur/inventory-core.git/internal/orders"
	"github.com/ariefcatur/inventory-core.git/internal/postgres"
	"github.com/ariefcatur/inventory-core.git/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	log, _ := zap.NewProduction()
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, fulfillment.TopicOrderPlaced, 1024, log)
	pPlaced.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, fulfillment.TopicOrderCancelled, 1024, log)
	pCancelled.Start(ctx)
	pRejected := kafkax.NewProducer(cfg.KafkaBrokers, fulfillment.TopicStockRejected, 1024, log)
	pRejected.Start(ctx)

	// Core wiring
	store := &orders.Store{DB: db}
	stockLedger := &ledger.PGLedger{DB: db}
	coord := &fulfillment.Coordinator{
		Ledger:            stockLedger,
		Catalog:           &catalog.PGCatalog{DB: db},
		Store:             store,
		ProducerPlaced:    pPlaced,
		ProducerCancelled: pCancelled,
		ProducerRejected:  pRejected,
		Log:               log,
		Service:           cfg.ServiceName,
	}

	router := httpx.NewRouter()
	h := &httpx.FulfillmentHandler{
		Coordinator: coord,
		Store:       store,
		Ledger:      stockLedger,
		Redis:       rdb,
		Warehouse:   cfg.WarehouseID,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exit", zap.Error(err))
	}

	log.Info("shutting down...")
	stop() // producer loops flush and close on context cancel
	pPlaced.WaitClosed()
	pCancelled.WaitClosed()
	pRejected.WaitClosed()
}
