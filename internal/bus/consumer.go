package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/saga"
)

// EventHandler processes one decoded envelope. A returned error means the
// delivery is retried in place; the handler's idempotency guard absorbs any
// repeat of already-applied work.
type EventHandler func(ctx context.Context, ev saga.Event) error

// Consumer runs one consumer-group reader per topic and dispatches decoded
// envelopes to handlers. Offsets are committed manually, only after the
// handler (and therefore the next-hop publish) succeeded.
type Consumer struct {
	brokers    []string
	groupID    string
	newBackOff func() backoff.BackOff
}

// NewConsumer builds a consumer bound to one consumer group. Group the
// consumers per step so only one handler type processes each topic.
func NewConsumer(brokers []string, groupID string) *Consumer {
	return &Consumer{
		brokers: brokers,
		groupID: groupID,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Run consumes the topic until ctx is cancelled. It blocks; start one
// goroutine per subscribed topic.
func (c *Consumer) Run(ctx context.Context, topic string, handler EventHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10 * 1024 * 1024,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			slog.Error("closing reader", "topic", topic, "error", err)
		}
	}()

	slog.Info("consuming topic", "topic", topic, "group", c.groupID)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", topic, err)
		}

		commit, err := c.handleMessage(ctx, topic, msg, handler)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("handle on %s: %w", topic, err)
		}
		if commit {
			if err := reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("commit on %s: %w", topic, err)
			}
		}
	}
}

// handleMessage decodes one delivery and runs the handler, retrying in place
// until it succeeds or ctx ends. The partition never advances past a failing
// message: group commits are watermarks, so committing any later offset would
// implicitly commit this one and the delivery would be lost for good. It
// reports whether the offset may be committed.
func (c *Consumer) handleMessage(ctx context.Context, topic string, msg kafka.Message, handler EventHandler) (bool, error) {
	msgCtx := extractTraceContext(ctx, msg)
	msgCtx, span := tracer.Start(msgCtx, topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	var ev saga.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		// A payload that cannot be decoded will never decode on retry. Log it
		// and commit so it does not wedge the partition.
		span.SetStatus(codes.Error, "undecodable message")
		slog.ErrorContext(msgCtx, "dropping undecodable message",
			"topic", topic, "offset", msg.Offset, "error", err)
		return true, nil
	}

	operation := func() (struct{}, error) {
		return struct{}{}, handler(msgCtx, ev)
	}
	notify := func(err error, delay time.Duration) {
		slog.ErrorContext(msgCtx, "handler failed, retrying delivery",
			"topic", topic, "offset", msg.Offset,
			"orderId", ev.OrderID, "transactionId", ev.TransactionID,
			"delay", delay, "error", err)
	}
	if _, err := backoff.Retry(msgCtx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithNotify(notify),
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery abandoned")
		return false, err
	}
	return true, nil
}

// extractTraceContext continues the trace started by the publisher.
func extractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range msg.Headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
