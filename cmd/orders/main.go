package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/config"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/inventory"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/messaging"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/orders"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/store/memory"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/store/postgres"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/telemetry"
)

const serviceName = "orders"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	var store fulfillment.Store
	switch cfg.Store {
	case config.StoreMemory:
		mem := memory.New()
		memory.Seed(mem, time.Now().UTC())
		store = mem
		logger.Warn("using in-memory store, data is lost on restart")
	default:
		var db *sql.DB
		db, err = telemetry.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		store = postgres.NewStore(db)
	}

	var opts []fulfillment.Option
	if len(cfg.KafkaBrokers) > 0 {
		events := messaging.NewOrderEvents(cfg.KafkaBrokers)
		defer func() { _ = events.Close() }()
		opts = append(opts, fulfillment.WithPublisher(events))
	}

	engine, err := fulfillment.NewEngine(store, logger, opts...)
	if err != nil {
		logger.Error("failed to create fulfillment engine", "error", err)
		os.Exit(1)
	}

	var idem orders.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		idem = orders.NewRedisIdempotency(rdb)
	}

	mux := http.NewServeMux()
	orders.NewHandler(engine, idem, logger).Register(mux, telemetry.WithHTTPRoute)
	inventory.NewHandler(engine, logger).Register(mux, telemetry.WithHTTPRoute)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port, "store", cfg.Store)
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
