// Package orchestrator is the orchestration deployment shape: one service
// holds the full step sequence and pushes the envelope to each step
// explicitly. It reuses the exact router the choreography services share, so
// the two shapes cannot disagree on the next hop.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"orderflow/internal/saga"
)

// Service consumes the start topic and the step reply topic and publishes
// every next hop itself.
type Service struct {
	router    *saga.Router
	publisher saga.Publisher
}

// NewService wires the orchestrator over the shared definition.
func NewService(def *saga.Definition, publisher saga.Publisher) *Service {
	return &Service{router: saga.NewRouter(def), publisher: publisher}
}

// Handle routes one envelope. An unknown source is a topic-wiring defect:
// it is surfaced loudly and swallowed, leaving the saga instance in its last
// recorded state for manual inspection — redelivering cannot fix wiring.
func (s *Service) Handle(ctx context.Context, ev saga.Event) error {
	hop, err := s.router.NextHop(ev)
	if err != nil {
		if errors.Is(err, saga.ErrUnknownSource) {
			slog.ErrorContext(ctx, "routing misconfiguration, saga left for manual inspection",
				"orderId", ev.OrderID,
				"transactionId", ev.TransactionID,
				"source", ev.Source,
				"error", err)
			return nil
		}
		return err
	}

	slog.InfoContext(ctx, "orchestrator routing event",
		"orderId", ev.OrderID,
		"transactionId", ev.TransactionID,
		"source", ev.Source,
		"status", string(ev.Status),
		"topic", hop.Topic,
		"state", hop.State.String(),
	)
	return s.publisher.Publish(ctx, hop.Topic, ev)
}
