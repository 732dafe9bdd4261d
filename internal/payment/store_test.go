package payment

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/saga"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStoreSavePayment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO payments").
		WithArgs("order-1", "tx-1", 61.0, 3, "SUCCESS").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SavePayment(context.Background(), Payment{
		OrderID:       "order-1",
		TransactionID: "tx-1",
		TotalAmount:   61.0,
		TotalItems:    3,
		Status:        PaymentSuccess,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSavePaymentDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO payments").
		WithArgs("order-1", "tx-1", 61.0, 3, "SUCCESS").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SavePayment(context.Background(), Payment{
		OrderID:       "order-1",
		TransactionID: "tx-1",
		TotalAmount:   61.0,
		TotalItems:    3,
		Status:        PaymentSuccess,
	})
	assert.ErrorIs(t, err, saga.ErrDuplicateTransaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindPayment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT order_id, transaction_id, total_amount, total_items, status").
		WithArgs("order-1", "tx-1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"order_id", "transaction_id", "total_amount", "total_items", "status"}).
			AddRow("order-1", "tx-1", 61.0, 3, "SUCCESS"))

	p, err := store.FindPayment(context.Background(), "order-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, PaymentSuccess, p.Status)
	assert.InDelta(t, 61.0, p.TotalAmount, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindPaymentMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT order_id, transaction_id, total_amount, total_items, status").
		WithArgs("order-1", "tx-1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindPayment(context.Background(), "order-1", "tx-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStoreRefund(t *testing.T) {
	t.Run("existing payment is refunded", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE payments SET status").
			WithArgs("order-1", "tx-1", "REFUND").
			WillReturnResult(sqlmock.NewResult(0, 1))

		refunded, err := store.Refund(context.Background(), "order-1", "tx-1")
		require.NoError(t, err)
		assert.True(t, refunded)
	})

	t.Run("missing payment reports nothing to undo", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectExec("UPDATE payments SET status").
			WithArgs("order-1", "tx-1", "REFUND").
			WillReturnResult(sqlmock.NewResult(0, 0))

		refunded, err := store.Refund(context.Background(), "order-1", "tx-1")
		require.NoError(t, err)
		assert.False(t, refunded)
	})
}
