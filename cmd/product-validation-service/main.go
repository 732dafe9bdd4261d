package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"orderflow/internal/bus"
	"orderflow/internal/pkg/config"
	"orderflow/internal/pkg/telemetry"
	"orderflow/internal/product"
	"orderflow/internal/saga"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("product-validation-service")
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

	store := product.NewStore(db)
	if err := store.InitSchema(ctx); err != nil {
		fatal("failed to initialise schema", err)
	}
	if os.Getenv("SEED_DATA") == "true" {
		if err := store.Seed(ctx, []string{"COMIC_BOOKS", "BOOKS", "MOVIES", "MUSIC"}); err != nil {
			fatal("failed to seed products", err)
		}
	}

	publisher := bus.NewPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	def := saga.NewOrderSagaDefinition()
	executor := saga.NewExecutor(
		product.NewService(store),
		forwarder(cfg.Mode, def, publisher),
		"Products are validated successfully!",
		"validate products",
		"product validation",
	)

	consumer := bus.NewConsumer(cfg.KafkaBrokers, cfg.GroupID)

	go func() {
		err := consumer.Run(ctx, saga.TopicProductValidationFail, func(ctx context.Context, ev saga.Event) error {
			_, err := executor.HandleCompensate(ctx, ev)
			return err
		})
		if err != nil {
			slog.Error("compensate consumer stopped", "error", err)
			stop()
		}
	}()

	err = consumer.Run(ctx, saga.TopicProductValidationStart, func(ctx context.Context, ev saga.Event) error {
		_, err := executor.HandleExecute(ctx, ev)
		return err
	})
	if err != nil {
		fatal("execute consumer stopped", err)
	}
}

func forwarder(mode config.Mode, def *saga.Definition, publisher saga.Publisher) saga.Forwarder {
	if mode == config.ModeOrchestration {
		return saga.TopicForwarder{Topic: saga.TopicOrchestratorReplies, Publisher: publisher}
	}
	return saga.RouterForwarder{Router: saga.NewRouter(def), Publisher: publisher}
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
