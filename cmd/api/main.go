package main

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/joao-fontenele/checkout-flow/internal/cart"
	"github.com/joao-fontenele/checkout-flow/internal/catalog"
	"github.com/joao-fontenele/checkout-flow/internal/checkout"
	"github.com/joao-fontenele/checkout-flow/internal/config"
	"github.com/joao-fontenele/checkout-flow/internal/messaging"
	"github.com/joao-fontenele/checkout-flow/internal/orders"
	"github.com/joao-fontenele/checkout-flow/internal/payment"
	"github.com/joao-fontenele/checkout-flow/internal/reservation"
	"github.com/joao-fontenele/checkout-flow/internal/stockledger"
	"github.com/joao-fontenele/checkout-flow/internal/telemetry"
)

const serviceVersion = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, serviceVersion)
	if err != nil {
		logger.Error("failed to init tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, serviceVersion)
	if err != nil {
		logger.Error("failed to init meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	if err := otelruntime.Start(); err != nil {
		logger.Error("failed to start runtime metrics", "error", err)
		os.Exit(1)
	}

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

	replicas := make([]*sql.DB, 0, len(cfg.ReplicaURLs))
	for _, url := range cfg.ReplicaURLs {
		replica, err := telemetry.OpenDB("postgres", url, "replica")
		if err != nil {
			logger.Error("failed to open replica", "error", err)
			os.Exit(1)
		}
		defer func() { _ = replica.Close() }()
		replicas = append(replicas, replica)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	if err := telemetry.InstrumentRedis(rdb); err != nil {
		logger.Error("failed to instrument redis", "error", err)
		os.Exit(1)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = messaging.NewProducer(cfg.KafkaBrokers)
		defer func() { _ = producer.Close() }()
	}

	picker := catalog.NewReplicaPicker(db, replicas...)
	catalogReader := catalog.NewCached(catalog.NewRepository(picker), rdb, cfg.CatalogTTL)
	catalogHandler := catalog.NewHandler(catalogReader, logger)

	ledger := stockledger.NewLedger(db)

	cartStore := cart.NewStore(rdb, cfg.CartTTL)
	cartHandler := cart.NewHandler(cartStore, catalogReader, ledger, logger)
	resCache := reservation.NewCache(rdb, cfg.HoldTTL, cfg.AvailCacheTTL)

	gateway := payment.NewSimulated(cfg.PaymentSuccessRate,
		rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))

	orderRepo := orders.NewRepository(db)
	orderHandler := orders.NewHandler(orderRepo, logger)

	checkoutRepo := checkout.NewRepository(db)

	var publisher checkout.Publisher
	if producer != nil {
		publisher = producer
	}
	service, err := checkout.NewService(
		cartStore, resCache, ledger, checkoutRepo, orderRepo,
		gateway, publisher, logger,
		cfg.PaymentTimeout, cfg.HoldTTL,
	)
	if err != nil {
		logger.Error("failed to build checkout service", "error", err)
		os.Exit(1)
	}
	checkoutHandler := checkout.NewHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))

	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(cartHandler.HandleGet))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(cartHandler.HandleAddItem))
	mux.HandleFunc("PATCH /cart/items/{productId}", telemetry.WithHTTPRoute(cartHandler.HandleUpdateItem))
	mux.HandleFunc("DELETE /cart/items/{productId}", telemetry.WithHTTPRoute(cartHandler.HandleRemoveItem))
	mux.HandleFunc("DELETE /cart", telemetry.WithHTTPRoute(cartHandler.HandleClear))

	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(checkoutHandler.HandleCheckout))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(checkoutHandler.HandleCancel))

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(mux, "http.server"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting checkout api", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
