package saga

import "errors"

// OutcomeKind classifies what a step's Execute did. Business failures are
// values, not errors: only infrastructure problems (DB down, etc.) travel as
// Go errors, because those are the ones the bus should redeliver.
type OutcomeKind int

const (
	// OutcomeSuccess: local check and mutation applied, idempotency record written.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeBusinessFailure: a business rule rejected the order. Recovered
	// locally into ROLLBACK_PENDING, never surfaced as a transport error.
	OutcomeBusinessFailure
	// OutcomeDuplicate: an idempotency record already exists for this
	// (orderId, transactionId). No side effect was re-applied; the event is
	// forwarded with the status recorded at first processing, never re-derived.
	OutcomeDuplicate
)

// Outcome is the explicit result of a step execution.
type Outcome struct {
	Kind   OutcomeKind
	Reason string // set for OutcomeBusinessFailure
	Prior  Status // set for OutcomeDuplicate: the status recorded at first processing
}

func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

func BusinessFailure(reason string) Outcome {
	return Outcome{Kind: OutcomeBusinessFailure, Reason: reason}
}

// Duplicate reports an already-processed delivery. prior is the status the
// step's own record says it forwarded the first time: SUCCESS for a committed
// execution still standing, ROLLBACK_PENDING when the record shows the step
// failed or was since compensated. A redelivery must push the saga in the
// recorded direction, not invent a new one.
func Duplicate(prior Status) Outcome { return Outcome{Kind: OutcomeDuplicate, Prior: prior} }

// ErrDuplicateTransaction is returned by stores when an idempotency record
// already exists for the (orderId, transactionId) pair.
var ErrDuplicateTransaction = errors.New("transaction already processed for this order")

// ErrUnknownSource is a routing misconfiguration: the envelope's source is not
// part of the saga definition. There is no safe next hop, so the saga instance
// must be left in its last recorded state and the error surfaced.
var ErrUnknownSource = errors.New("event source not present in saga definition")
