package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow/internal/bus"
	"orderflow/internal/orchestrator"
	"orderflow/internal/pkg/config"
	"orderflow/internal/pkg/telemetry"
	"orderflow/internal/saga"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("orchestrator-service")
	if err != nil {
		fatal("invalid configuration", err)
	}

	shutdown, err := telemetry.SetupTracer(ctx, cfg.ServiceName)
	if err != nil {
		fatal("failed to initialise tracer", err)
	}
	defer flushTracer(shutdown)

	publisher := bus.NewPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	service := orchestrator.NewService(saga.NewOrderSagaDefinition(), publisher)
	consumer := bus.NewConsumer(cfg.KafkaBrokers, cfg.GroupID)

	go func() {
		if err := consumer.Run(ctx, saga.TopicStartSaga, service.Handle); err != nil {
			slog.Error("start-saga consumer stopped", "error", err)
			stop()
		}
	}()

	if err := consumer.Run(ctx, saga.TopicOrchestratorReplies, service.Handle); err != nil {
		fatal("replies consumer stopped", err)
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
