package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/saga"
)

type fakeCharger struct {
	saved     []Payment
	saveErr   error
	recorded  Payment
	findErr   error
	refunded  bool
	refundErr error
}

func (f *fakeCharger) SavePayment(ctx context.Context, p Payment) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, p)
	return nil
}

func (f *fakeCharger) FindPayment(ctx context.Context, orderID, transactionID string) (Payment, error) {
	return f.recorded, f.findErr
}

func (f *fakeCharger) Refund(ctx context.Context, orderID, transactionID string) (bool, error) {
	return f.refunded, f.refundErr
}

func paymentEvent(items ...saga.OrderProduct) saga.Event {
	return saga.Event{
		OrderID:       "order-1",
		TransactionID: "tx-1",
		Payload:       saga.Order{ID: "order-1", TransactionID: "tx-1", Products: items},
	}
}

func TestPaymentExecuteCharges(t *testing.T) {
	store := &fakeCharger{}
	svc := NewService(store)

	ev := paymentEvent(
		saga.OrderProduct{Product: saga.Product{Code: "BOOKS", UnitValue: 25.5}, Quantity: 2},
		saga.OrderProduct{Product: saga.Product{Code: "MUSIC", UnitValue: 10}, Quantity: 1},
	)

	out, err := svc.Execute(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeSuccess, out.Kind)

	require.Len(t, store.saved, 1)
	p := store.saved[0]
	assert.InDelta(t, 61.0, p.TotalAmount, 1e-9)
	assert.Equal(t, 3, p.TotalItems)
	assert.Equal(t, PaymentSuccess, p.Status)
}

func TestPaymentExecuteBelowMinimum(t *testing.T) {
	store := &fakeCharger{}
	svc := NewService(store)

	ev := paymentEvent(saga.OrderProduct{Product: saga.Product{Code: "BOOKS", UnitValue: 0.01}, Quantity: 1})

	out, err := svc.Execute(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, saga.OutcomeBusinessFailure, out.Kind)
	assert.Equal(t, "The minimum amount available is 0.1!", out.Reason)
	assert.Empty(t, store.saved, "rejected orders are never charged")
}

func TestPaymentExecuteDuplicate(t *testing.T) {
	ev := paymentEvent(saga.OrderProduct{Product: saga.Product{Code: "BOOKS", UnitValue: 25.5}, Quantity: 1})

	t.Run("standing charge keeps advancing", func(t *testing.T) {
		svc := NewService(&fakeCharger{
			saveErr:  saga.ErrDuplicateTransaction,
			recorded: Payment{Status: PaymentSuccess},
		})

		out, err := svc.Execute(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, saga.OutcomeDuplicate, out.Kind)
		assert.Equal(t, saga.StatusSuccess, out.Prior)
	})

	t.Run("refunded charge keeps rolling back", func(t *testing.T) {
		svc := NewService(&fakeCharger{
			saveErr:  saga.ErrDuplicateTransaction,
			recorded: Payment{Status: PaymentRefund},
		})

		out, err := svc.Execute(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, saga.OutcomeDuplicate, out.Kind)
		assert.Equal(t, saga.StatusRollbackPending, out.Prior,
			"a compensated saga must not be charged forward again")
	})

	t.Run("unreadable record is retried", func(t *testing.T) {
		svc := NewService(&fakeCharger{
			saveErr: saga.ErrDuplicateTransaction,
			findErr: errors.New("connection reset"),
		})

		_, err := svc.Execute(context.Background(), ev)
		assert.Error(t, err)
	})
}

func TestPaymentExecuteValidatesEnvelope(t *testing.T) {
	svc := NewService(&fakeCharger{})

	out, err := svc.Execute(context.Background(), saga.Event{TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, "OrderID and TransactionID must be informed!", out.Reason)

	out, err = svc.Execute(context.Background(), paymentEvent())
	require.NoError(t, err)
	assert.Equal(t, "Product list is empty!", out.Reason)
}

func TestPaymentExecuteInfrastructureError(t *testing.T) {
	svc := NewService(&fakeCharger{saveErr: errors.New("connection reset")})

	ev := paymentEvent(saga.OrderProduct{Product: saga.Product{Code: "BOOKS", UnitValue: 25.5}, Quantity: 1})
	_, err := svc.Execute(context.Background(), ev)
	assert.Error(t, err)
}

func TestPaymentCompensate(t *testing.T) {
	t.Run("refunds the recorded charge", func(t *testing.T) {
		svc := NewService(&fakeCharger{refunded: true})
		note, err := svc.Compensate(context.Background(), paymentEvent())
		require.NoError(t, err)
		assert.Equal(t, "Rollback executed on payment!", note)
	})

	t.Run("no charge recorded is a no-op", func(t *testing.T) {
		svc := NewService(&fakeCharger{refunded: false})
		note, err := svc.Compensate(context.Background(), paymentEvent())
		require.NoError(t, err)
		assert.Equal(t, "Nothing to roll back on payment.", note)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		svc := NewService(&fakeCharger{refundErr: errors.New("connection reset")})
		_, err := svc.Compensate(context.Background(), paymentEvent())
		assert.Error(t, err)
	})
}
