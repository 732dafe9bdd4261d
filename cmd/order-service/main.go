package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"orderflow/internal/bus"
	"orderflow/internal/order"
	"orderflow/internal/order/httpx"
	"orderflow/internal/pkg/cache"
	"orderflow/internal/pkg/config"
	"orderflow/internal/pkg/telemetry"
	"orderflow/internal/saga"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("order-service")
	if err != nil {
		fatal("invalid configuration", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		fatal("invalid configuration", err)
	}

	shutdown, err := telemetry.SetupTracer(ctx, cfg.ServiceName)
	if err != nil {
		fatal("failed to initialise tracer", err)
	}
	defer flushTracer(shutdown)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		fatal("failed to open database", err)
	}
	defer db.Close()

	store := order.NewEventStore(db)
	if err := store.InitSchema(ctx); err != nil {
		fatal("failed to initialise schema", err)
	}

	publisher := bus.NewPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	def := saga.NewOrderSagaDefinition()
	var forwarder saga.Forwarder
	if cfg.Mode == config.ModeOrchestration {
		forwarder = saga.TopicForwarder{Topic: saga.TopicStartSaga, Publisher: publisher}
	} else {
		forwarder = saga.RouterForwarder{Router: saga.NewRouter(def), Publisher: publisher}
	}

	redisCache := cache.NewRedisCache(cfg.RedisAddr, "order")
	service := order.NewService(store, forwarder, redisCache, cfg.CacheTTL)

	consumer := bus.NewConsumer(cfg.KafkaBrokers, cfg.GroupID)
	go func() {
		err := consumer.Run(ctx, saga.TopicNotifyEnding, func(ctx context.Context, ev saga.Event) error {
			_, err := service.NotifyEnding(ctx, ev)
			return err
		})
		if err != nil {
			slog.Error("notify-ending consumer stopped", "error", err)
			stop()
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(httpx.NewHandler(service)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
	}()

	slog.Info("order service running", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("http server stopped", err)
	}
}

func flushTracer(shutdown telemetry.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Error("tracer shutdown error", "error", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
