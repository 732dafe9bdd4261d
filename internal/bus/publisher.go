// Package bus is the Kafka transport for saga envelopes. Envelopes travel as
// JSON message bodies keyed by orderId, so every hop of one saga lands on the
// same partition and per-saga ordering follows from Kafka's per-partition
// ordering plus the fact that each hop is published only after the previous
// handler completed.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/saga"
)

var tracer = otel.Tracer("orderflow/internal/bus")

// Publisher writes envelopes to topics over a single shared kafka-go Writer.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher builds a Publisher for the given brokers. RequireAll acks: the
// caller must know when a hop was not confirmed sent.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish sends one envelope to the topic inside a producer span whose
// context is injected into the message headers, so the next consumer
// continues the trace.
func (p *Publisher) Publish(ctx context.Context, topic string, ev saga.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}

	ctx, span := tracer.Start(ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.kafka.message.key", ev.OrderID),
		),
	)
	defer span.End()

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(ev.OrderID),
		Value: body,
	}

	carrier := headerCarrier{msg: &msg}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error { return p.writer.Close() }

// headerCarrier adapts kafka-go message headers to the OTel TextMapCarrier.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
