// Package saga contains the coordination core: the event envelope that flows
// between step services, the fixed saga definition, the pure routing state
// machine and the generic step executor.
//
// The envelope is the only shared state a saga has. There is no server-held
// session: every consumer recovers "how far the saga got" from the envelope
// itself, so all transition helpers here are copy-on-write — a handler never
// mutates the envelope it received from the bus.
package saga

import "time"

// Status is the lifecycle state carried by the envelope. It is the edge label
// of the routing state machine: status alone, combined with the static step
// position, decides the next hop.
type Status string

const (
	// StatusPending marks an envelope created but not yet processed by any step.
	StatusPending Status = "PENDING"
	// StatusSuccess means the step named in Source completed its local work.
	StatusSuccess Status = "SUCCESS"
	// StatusRollbackPending means the step named in Source hit a business-rule
	// failure and the saga must start compensating from the previous step.
	StatusRollbackPending Status = "ROLLBACK_PENDING"
	// StatusFail means a compensation just ran at the step named in Source.
	StatusFail Status = "FAIL"
	// StatusRolledBack is the terminal marker stamped by the ending handler
	// once every executed step has been compensated. It never appears on a
	// step topic, only on the final audit record, so FAIL always means "one
	// compensation ran" and never "the whole saga is done failing".
	StatusRolledBack Status = "ROLLED_BACK"
)

// History is one entry of the envelope's append-only audit trail.
type History struct {
	Source    string    `json:"source"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product is a catalog reference inside a line item.
type Product struct {
	Code      string  `json:"code"`
	UnitValue float64 `json:"unitValue"`
}

// OrderProduct is one line item of the order payload.
type OrderProduct struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Order is the domain payload being processed by the saga.
type Order struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transactionId"`
	Products      []OrderProduct `json:"products"`
	TotalAmount   float64        `json:"totalAmount"`
	TotalItems    int            `json:"totalItems"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Event is the envelope published on every topic. OrderID is the stable
// business identifier; TransactionID is unique per saga attempt and is what
// idempotency records are keyed on.
type Event struct {
	OrderID       string    `json:"orderId"`
	TransactionID string    `json:"transactionId"`
	Payload       Order     `json:"payload"`
	Source        string    `json:"source"`
	Status        Status    `json:"status"`
	History       []History `json:"history"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Next returns a copy of the event advanced by one step visit: source and
// status updated, one history entry appended. The receiver is left untouched,
// including its history backing array.
func (e Event) Next(source string, status Status, message string) Event {
	now := time.Now().UTC()

	out := e
	out.Source = source
	out.Status = status
	out.CreatedAt = now

	out.History = make([]History, len(e.History), len(e.History)+1)
	copy(out.History, e.History)
	out.History = append(out.History, History{
		Source:    source,
		Status:    status,
		Message:   message,
		CreatedAt: now,
	})
	return out
}

// LastHistory returns the most recent history entry, if any.
func (e Event) LastHistory() (History, bool) {
	if len(e.History) == 0 {
		return History{}, false
	}
	return e.History[len(e.History)-1], true
}
