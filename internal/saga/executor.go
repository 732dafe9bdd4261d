package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Step is the contract every participating service satisfies. Execute and
// Compensate perform only the local business work; history bookkeeping and
// forwarding belong to the Executor so they cannot diverge between services.
type Step interface {
	// Source is the identifier stamped on the envelope by this step.
	Source() string

	// Execute applies the local check and state change. Business rejections
	// and duplicate deliveries are reported through the Outcome; the error
	// return is reserved for infrastructure failures that warrant redelivery.
	Execute(ctx context.Context, ev Event) (Outcome, error)

	// Compensate undoes a previously recorded execution. It returns a human
	// readable note for the history trail. A missing idempotency record is
	// not an error: there is nothing to undo and the note should say so.
	// An error return is recorded as a diagnostic but never blocks the
	// rollback chain.
	Compensate(ctx context.Context, ev Event) (string, error)
}

// Publisher sends an envelope to a topic. Implemented by the Kafka bus; tests
// swap in a recording fake.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev Event) error
}

// Forwarder hands a processed envelope to whoever decides the next hop. The
// two deployment shapes differ only here: choreography routes locally,
// orchestration replies to the coordinator's topic.
type Forwarder interface {
	Forward(ctx context.Context, ev Event) error
}

// RouterForwarder routes with the shared definition and publishes directly to
// the resulting topic (choreography).
type RouterForwarder struct {
	Router    *Router
	Publisher Publisher
}

func (f RouterForwarder) Forward(ctx context.Context, ev Event) error {
	hop, err := f.Router.NextHop(ev)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "routing event",
		"orderId", ev.OrderID,
		"transactionId", ev.TransactionID,
		"source", ev.Source,
		"status", string(ev.Status),
		"topic", hop.Topic,
		"state", hop.State.String(),
	)
	if err := f.Publisher.Publish(ctx, hop.Topic, ev); err != nil {
		return fmt.Errorf("publish to %s: %w", hop.Topic, err)
	}
	return nil
}

// TopicForwarder publishes every processed envelope to one fixed topic
// (orchestration: the step replies and the orchestrator decides).
type TopicForwarder struct {
	Topic     string
	Publisher Publisher
}

func (f TopicForwarder) Forward(ctx context.Context, ev Event) error {
	if err := f.Publisher.Publish(ctx, f.Topic, ev); err != nil {
		return fmt.Errorf("publish to %s: %w", f.Topic, err)
	}
	return nil
}

// Executor runs one Step behind the generic handler contract: it invokes the
// business logic, appends exactly one history entry reflecting the outcome
// and forwards the new envelope. The inbound envelope is never mutated.
type Executor struct {
	step      Step
	forwarder Forwarder

	// Messages are assembled as "<verb phrase>" plus the failure prefix, e.g.
	// "Inventory updated successfully!" / "Fail to update inventory: <reason>".
	successMessage string
	failPrefix     string
	rollbackDone   string
	rollbackFailed string
}

// NewExecutor wires a step into the saga. action is the verb phrase used in
// failure messages ("update inventory"), resource the noun used in rollback
// messages ("inventory").
func NewExecutor(step Step, forwarder Forwarder, successMessage, action, resource string) *Executor {
	return &Executor{
		step:           step,
		forwarder:      forwarder,
		successMessage: successMessage,
		failPrefix:     "Fail to " + action + ": ",
		rollbackDone:   "Rollback executed on " + resource + "!",
		rollbackFailed: "Rollback not executed on " + resource + ": ",
	}
}

// HandleExecute processes one delivery of the step's execute topic and
// returns the forwarded envelope.
func (x *Executor) HandleExecute(ctx context.Context, ev Event) (Event, error) {
	out, err := x.step.Execute(ctx, ev)
	if err != nil {
		// Infrastructure failure: no history entry, no forward. The consumer
		// leaves the offset uncommitted so the bus redelivers.
		return Event{}, fmt.Errorf("%s execute: %w", x.step.Source(), err)
	}

	var next Event
	switch out.Kind {
	case OutcomeSuccess:
		next = ev.Next(x.step.Source(), StatusSuccess, x.successMessage)
	case OutcomeBusinessFailure:
		slog.WarnContext(ctx, "business rule rejected event",
			"orderId", ev.OrderID, "transactionId", ev.TransactionID,
			"source", x.step.Source(), "reason", out.Reason)
		next = ev.Next(x.step.Source(), StatusRollbackPending, x.failPrefix+out.Reason)
	case OutcomeDuplicate:
		// Already processed this saga attempt: keep the recorded direction.
		// Validation rows survive a failed validation and payment/inventory
		// rows survive compensation, so the record alone does not imply
		// SUCCESS; the step must report what it recorded.
		if out.Prior != StatusSuccess && out.Prior != StatusRollbackPending {
			return Event{}, fmt.Errorf("%s execute: duplicate outcome carries no recorded status", x.step.Source())
		}
		slog.InfoContext(ctx, "duplicate delivery skipped",
			"orderId", ev.OrderID, "transactionId", ev.TransactionID,
			"source", x.step.Source(), "recordedStatus", string(out.Prior))
		next = ev.Next(x.step.Source(), out.Prior,
			"Transaction already processed, skipping execution.")
	default:
		return Event{}, fmt.Errorf("%s execute: unknown outcome kind %d", x.step.Source(), out.Kind)
	}

	if err := x.forward(ctx, next); err != nil {
		return Event{}, err
	}
	return next, nil
}

// HandleCompensate processes one delivery of the step's compensate topic.
// Compensation failures are recorded in the history as diagnostics and the
// envelope is forwarded regardless: a step that cannot be undone must not
// block compensating the steps before it.
func (x *Executor) HandleCompensate(ctx context.Context, ev Event) (Event, error) {
	note, err := x.step.Compensate(ctx, ev)

	var next Event
	if err != nil {
		slog.ErrorContext(ctx, "compensation failed",
			"orderId", ev.OrderID, "transactionId", ev.TransactionID,
			"source", x.step.Source(), "error", err)
		next = ev.Next(x.step.Source(), StatusFail, x.rollbackFailed+err.Error())
	} else {
		if note == "" {
			note = x.rollbackDone
		}
		next = ev.Next(x.step.Source(), StatusFail, note)
	}

	if err := x.forward(ctx, next); err != nil {
		return Event{}, err
	}
	return next, nil
}

// forward hands the envelope off. A routing misconfiguration (source missing
// from the definition) has no safe next hop and cannot be fixed by
// redelivery, so it is surfaced loudly and absorbed: the saga instance stays
// in its last recorded state for manual inspection. Every other failure,
// including an unconfirmed publish, propagates so the delivery is retried.
func (x *Executor) forward(ctx context.Context, next Event) error {
	err := x.forwarder.Forward(ctx, next)
	if errors.Is(err, ErrUnknownSource) {
		slog.ErrorContext(ctx, "routing misconfiguration, saga left for manual inspection",
			"orderId", next.OrderID, "transactionId", next.TransactionID,
			"source", next.Source, "error", err)
		return nil
	}
	return err
}
