package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/checkout-flow/internal/cart"
	"github.com/joao-fontenele/checkout-flow/internal/catalog"
	"github.com/joao-fontenele/checkout-flow/internal/checkout"
	"github.com/joao-fontenele/checkout-flow/internal/config"
	"github.com/joao-fontenele/checkout-flow/internal/domain"
	"github.com/joao-fontenele/checkout-flow/internal/messaging"
	"github.com/joao-fontenele/checkout-flow/internal/orders"
	"github.com/joao-fontenele/checkout-flow/internal/payment"
	"github.com/joao-fontenele/checkout-flow/internal/reservation"
	"github.com/joao-fontenele/checkout-flow/internal/stockledger"
	"github.com/joao-fontenele/checkout-flow/internal/telemetry"
	"github.com/joao-fontenele/checkout-flow/internal/worker"
)

const serviceVersion = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "checkout-worker", serviceVersion)
	if err != nil {
		logger.Error("failed to init tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL, "primary")
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	if err := telemetry.InstrumentRedis(rdb); err != nil {
		logger.Error("failed to instrument redis", "error", err)
		os.Exit(1)
	}

	ledger := stockledger.NewLedger(db)
	resCache := reservation.NewCache(rdb, cfg.HoldTTL, cfg.AvailCacheTTL)
	catalogCache := catalog.NewCached(
		catalog.NewRepository(catalog.NewReplicaPicker(db)), rdb, cfg.CatalogTTL)
	syncHandler := worker.NewStockSyncHandler(ledger, resCache, catalogCache, logger)

	producer := messaging.NewProducer(cfg.KafkaBrokers)
	defer func() { _ = producer.Close() }()

	// The sweeper reuses the checkout orchestrator so expiry compensation
	// follows the exact same path as an online cancellation.
	sweeper, err := checkout.NewService(
		cart.NewStore(rdb, cfg.CartTTL),
		resCache,
		ledger,
		checkout.NewRepository(db),
		orders.NewRepository(db),
		payment.NewSimulated(cfg.PaymentSuccessRate,
			rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))),
		producer,
		logger,
		cfg.PaymentTimeout,
		cfg.HoldTTL,
	)
	if err != nil {
		logger.Error("failed to build sweeper", "error", err)
		os.Exit(1)
	}

	confirmedConsumer := messaging.NewConsumer(cfg.KafkaBrokers, domain.TopicOrderConfirmed, "stock-sync-worker")
	defer func() { _ = confirmedConsumer.Close() }()
	cancelledConsumer := messaging.NewConsumer(cfg.KafkaBrokers, domain.TopicOrderCancelled, "stock-sync-worker")
	defer func() { _ = cancelledConsumer.Close() }()
	restockedConsumer := messaging.NewConsumer(cfg.KafkaBrokers, domain.TopicStockRestocked, "stock-sync-worker")
	defer func() { _ = restockedConsumer.Close() }()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	errC := make(chan error, 3)
	go func() {
		errC <- confirmedConsumer.Consume(ctx, syncHandler.HandleConfirmed)
	}()
	go func() {
		errC <- cancelledConsumer.Consume(ctx, syncHandler.HandleCancelled)
	}()
	go func() {
		errC <- restockedConsumer.Consume(ctx, syncHandler.HandleRestocked)
	}()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				swept, err := sweeper.SweepExpired(ctx)
				if err != nil {
					logger.Error("sweep failed", "error", err)
					continue
				}
				if swept > 0 {
					logger.Info("swept stale pending orders", "count", swept)
				}
			}
		}
	}()

	logger.Info("starting stock sync worker", "brokers", cfg.KafkaBrokers)

	if err := <-errC; err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
