package product

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/saga"
)

type fakeCatalog struct {
	known           map[string]bool
	saveErr         error
	recordedSuccess bool
	findErr         error
	markedExists    bool
	markErr         error

	lookups int
	saves   int
	marks   int
}

func (f *fakeCatalog) ProductExists(ctx context.Context, code string) (bool, error) {
	f.lookups++
	return f.known[code], nil
}

func (f *fakeCatalog) SaveValidation(ctx context.Context, orderID, transactionID string, success bool) error {
	f.saves++
	return f.saveErr
}

func (f *fakeCatalog) FindValidation(ctx context.Context, orderID, transactionID string) (bool, error) {
	return f.recordedSuccess, f.findErr
}

func (f *fakeCatalog) MarkValidationFailed(ctx context.Context, orderID, transactionID string) (bool, error) {
	f.marks++
	return f.markedExists, f.markErr
}

func validationEvent(codes ...string) saga.Event {
	ev := saga.Event{
		OrderID:       "order-1",
		TransactionID: "tx-1",
		Payload:       saga.Order{ID: "order-1", TransactionID: "tx-1"},
	}
	for _, code := range codes {
		ev.Payload.Products = append(ev.Payload.Products,
			saga.OrderProduct{Product: saga.Product{Code: code, UnitValue: 10}, Quantity: 1})
	}
	return ev
}

func TestValidationExecuteSuccess(t *testing.T) {
	catalog := &fakeCatalog{known: map[string]bool{"BOOKS": true, "MOVIES": true}}
	svc := NewService(catalog)

	out, err := svc.Execute(context.Background(), validationEvent("BOOKS", "MOVIES"))
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeSuccess, out.Kind)
	assert.Equal(t, 1, catalog.saves)
	assert.Equal(t, 2, catalog.lookups)
}

func TestValidationExecutePayloadChecks(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*saga.Event)
		wantReason string
	}{
		{"missing ids", func(ev *saga.Event) { ev.OrderID = "" }, "OrderID and TransactionID must be informed!"},
		{"empty product list", func(ev *saga.Event) { ev.Payload.Products = nil }, "Product list is empty!"},
		{"blank product code", func(ev *saga.Event) { ev.Payload.Products[0].Product.Code = "" }, "Product must be informed!"},
		{"zero quantity", func(ev *saga.Event) { ev.Payload.Products[0].Quantity = 0 }, "Product quantity must be greater than zero!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &fakeCatalog{known: map[string]bool{"BOOKS": true}}
			svc := NewService(catalog)

			ev := validationEvent("BOOKS")
			tt.mutate(&ev)

			out, err := svc.Execute(context.Background(), ev)
			require.NoError(t, err)
			assert.Equal(t, saga.OutcomeBusinessFailure, out.Kind)
			assert.Equal(t, tt.wantReason, out.Reason)
			assert.Zero(t, catalog.saves, "rejected payloads leave no marker")
		})
	}
}

// The duplicate gate fires on the marker insert, before any catalog lookup,
// and the outcome carries the status the marker recorded.
func TestValidationExecuteDuplicateShortCircuits(t *testing.T) {
	tests := []struct {
		name            string
		recordedSuccess bool
		wantPrior       saga.Status
	}{
		{"recorded success", true, saga.StatusSuccess},
		{"recorded failure", false, saga.StatusRollbackPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &fakeCatalog{saveErr: saga.ErrDuplicateTransaction, recordedSuccess: tt.recordedSuccess}
			svc := NewService(catalog)

			out, err := svc.Execute(context.Background(), validationEvent("BOOKS"))
			require.NoError(t, err)
			assert.Equal(t, saga.OutcomeDuplicate, out.Kind)
			assert.Equal(t, tt.wantPrior, out.Prior)
			assert.Zero(t, catalog.lookups)
		})
	}
}

// memoryCatalog keeps real marker state across deliveries.
type memoryCatalog struct {
	known map[string]bool
	rows  map[string]bool
}

func newMemoryCatalog(codes ...string) *memoryCatalog {
	known := map[string]bool{}
	for _, c := range codes {
		known[c] = true
	}
	return &memoryCatalog{known: known, rows: map[string]bool{}}
}

func (m *memoryCatalog) key(orderID, transactionID string) string {
	return orderID + "|" + transactionID
}

func (m *memoryCatalog) ProductExists(ctx context.Context, code string) (bool, error) {
	return m.known[code], nil
}

func (m *memoryCatalog) SaveValidation(ctx context.Context, orderID, transactionID string, success bool) error {
	k := m.key(orderID, transactionID)
	if _, exists := m.rows[k]; exists {
		return saga.ErrDuplicateTransaction
	}
	m.rows[k] = success
	return nil
}

func (m *memoryCatalog) FindValidation(ctx context.Context, orderID, transactionID string) (bool, error) {
	return m.rows[m.key(orderID, transactionID)], nil
}

func (m *memoryCatalog) MarkValidationFailed(ctx context.Context, orderID, transactionID string) (bool, error) {
	k := m.key(orderID, transactionID)
	_, existed := m.rows[k]
	m.rows[k] = false
	return existed, nil
}

type captureForwarder struct{ events []saga.Event }

func (c *captureForwarder) Forward(ctx context.Context, ev saga.Event) error {
	c.events = append(c.events, ev)
	return nil
}

// A redelivered execute after a failed validation must forward the recorded
// ROLLBACK_PENDING, not SUCCESS: the marker row survives the failure, and a
// redelivery that re-derived the direction would push a dead saga forward.
func TestValidationRedeliveryAfterFailureKeepsDirection(t *testing.T) {
	catalog := newMemoryCatalog("BOOKS")
	fwd := &captureForwarder{}
	x := saga.NewExecutor(NewService(catalog), fwd,
		"Products are validated successfully!", "validate products", "product validation")

	ev := validationEvent("PODCASTS")

	first, err := x.HandleExecute(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusRollbackPending, first.Status)

	second, err := x.HandleExecute(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusRollbackPending, second.Status,
		"redelivery must keep the recorded direction")
	last, _ := second.LastHistory()
	assert.Equal(t, "Transaction already processed, skipping execution.", last.Message)
	require.Len(t, fwd.events, 2)
}

func TestValidationExecuteUnknownProductUndoesMarker(t *testing.T) {
	catalog := &fakeCatalog{known: map[string]bool{"BOOKS": true}}
	svc := NewService(catalog)

	out, err := svc.Execute(context.Background(), validationEvent("BOOKS", "PODCASTS"))
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeBusinessFailure, out.Kind)
	assert.Equal(t, "Product does not exists in database!", out.Reason)
	assert.Equal(t, 1, catalog.marks, "optimistic marker must be flipped back")
}

func TestValidationExecuteInfrastructureError(t *testing.T) {
	catalog := &fakeCatalog{saveErr: errors.New("connection reset")}
	svc := NewService(catalog)

	_, err := svc.Execute(context.Background(), validationEvent("BOOKS"))
	assert.Error(t, err)
}

func TestValidationCompensate(t *testing.T) {
	t.Run("marker existed", func(t *testing.T) {
		svc := NewService(&fakeCatalog{markedExists: true})
		note, err := svc.Compensate(context.Background(), validationEvent("BOOKS"))
		require.NoError(t, err)
		assert.Equal(t, "Rollback executed on product validation!", note)
	})

	t.Run("marker missing is a no-op", func(t *testing.T) {
		svc := NewService(&fakeCatalog{markedExists: false})
		note, err := svc.Compensate(context.Background(), validationEvent("BOOKS"))
		require.NoError(t, err)
		assert.Equal(t, "Nothing to roll back on product validation.", note)
	})
}
