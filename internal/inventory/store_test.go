package inventory

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

func reserveItems() []saga.OrderProduct {
	return []saga.OrderProduct{
		{Product: saga.Product{Code: "BOOKS", UnitValue: 25.5}, Quantity: 2},
	}
}

func TestStoreReserve(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT available FROM inventory").
		WithArgs("BOOKS").
		WillReturnRows(sqlmock.NewRows([]string{"available"}).AddRow(5))
	mock.ExpectExec("INSERT INTO order_inventory").
		WithArgs("order-1", "tx-1", "BOOKS", 5, 2, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE inventory SET available = available -").
		WithArgs("BOOKS", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Reserve(context.Background(), "order-1", "tx-1", reserveItems())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReserveMultipleLineItems(t *testing.T) {
	store, mock := newMockStore(t)

	items := []saga.OrderProduct{
		{Product: saga.Product{Code: "BOOKS", UnitValue: 25.5}, Quantity: 2},
		{Product: saga.Product{Code: "MOVIES", UnitValue: 12}, Quantity: 3},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT available FROM inventory").
		WithArgs("BOOKS").
		WillReturnRows(sqlmock.NewRows([]string{"available"}).AddRow(5))
	mock.ExpectExec("INSERT INTO order_inventory").
		WithArgs("order-1", "tx-1", "BOOKS", 5, 2, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE inventory SET available = available -").
		WithArgs("BOOKS", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT available FROM inventory").
		WithArgs("MOVIES").
		WillReturnRows(sqlmock.NewRows([]string{"available"}).AddRow(4))
	mock.ExpectExec("INSERT INTO order_inventory").
		WithArgs("order-1", "tx-1", "MOVIES", 4, 3, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE inventory SET available = available -").
		WithArgs("MOVIES", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Reserve(context.Background(), "order-1", "tx-1", items)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReserveDuplicateRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT available FROM inventory").
		WithArgs("BOOKS").
		WillReturnRows(sqlmock.NewRows([]string{"available"}).AddRow(5))
	mock.ExpectExec("INSERT INTO order_inventory").
		WithArgs("order-1", "tx-1", "BOOKS", 5, 2, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Reserve(context.Background(), "order-1", "tx-1", reserveItems())
	assert.ErrorIs(t, err, saga.ErrDuplicateTransaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReserveOutOfStockRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT available FROM inventory").
		WithArgs("BOOKS").
		WillReturnRows(sqlmock.NewRows([]string{"available"}).AddRow(1))
	mock.ExpectExec("INSERT INTO order_inventory").
		WithArgs("order-1", "tx-1", "BOOKS", 1, 2, -1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := store.Reserve(context.Background(), "order-1", "tx-1", reserveItems())
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReserveUnknownProduct(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT available FROM inventory").
		WithArgs("BOOKS").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.Reserve(context.Background(), "order-1", "tx-1", reserveItems())
	assert.ErrorIs(t, err, ErrInventoryNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReservationCompensated(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"compensated reservation", true},
		{"standing reservation", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectQuery("SELECT EXISTS").
				WithArgs("order-1", "tx-1").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.want))

			compensated, err := store.ReservationCompensated(context.Background(), "order-1", "tx-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, compensated)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStoreRestore(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT product_code, old_quantity FROM order_inventory").
		WithArgs("order-1", "tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"product_code", "old_quantity"}).
			AddRow("BOOKS", 5).
			AddRow("MOVIES", 3))
	mock.ExpectExec("UPDATE inventory SET available =").
		WithArgs("BOOKS", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE inventory SET available =").
		WithArgs("MOVIES", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE order_inventory SET compensated_at").
		WithArgs("order-1", "tx-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	restored, err := store.Restore(context.Background(), "order-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRestoreNothingRecorded(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT product_code, old_quantity FROM order_inventory").
		WithArgs("order-1", "tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"product_code", "old_quantity"}))
	mock.ExpectCommit()

	restored, err := store.Restore(context.Background(), "order-1", "tx-1")
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.NoError(t, mock.ExpectationsWereMet())
}
