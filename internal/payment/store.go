// Package payment is the saga step that charges the order: it computes the
// totals from the line items and records one payment per transaction, which
// a compensation later flips to REFUND.
package payment

import (
	"context"
	"database/sql"
	"fmt"

	"orderflow/internal/saga"
)

// PaymentStatus is the lifecycle of one payment row.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentRefund  PaymentStatus = "REFUND"
)

// Payment is one row of the payments table.
type Payment struct {
	OrderID       string
	TransactionID string
	TotalAmount   float64
	TotalItems    int
	Status        PaymentStatus
}

// Store owns the payments table.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store backed by Postgres.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the table if it does not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			order_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			total_items INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (order_id, transaction_id)
		)`)
	return err
}

// SavePayment inserts the payment row. The insert is the idempotency gate:
// a conflicting row means this transaction was already charged.
func (s *Store) SavePayment(ctx context.Context, p Payment) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (order_id, transaction_id, total_amount, total_items, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id, transaction_id) DO NOTHING`,
		p.OrderID, p.TransactionID, p.TotalAmount, p.TotalItems, string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return saga.ErrDuplicateTransaction
	}
	return nil
}

// FindPayment loads the payment for the transaction.
func (s *Store) FindPayment(ctx context.Context, orderID, transactionID string) (Payment, error) {
	var p Payment
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT order_id, transaction_id, total_amount, total_items, status
		FROM payments
		WHERE order_id = $1 AND transaction_id = $2`,
		orderID, transactionID,
	).Scan(&p.OrderID, &p.TransactionID, &p.TotalAmount, &p.TotalItems, &status)
	if err != nil {
		return Payment{}, err
	}
	p.Status = PaymentStatus(status)
	return p, nil
}

// Refund flips the payment to REFUND. It returns false when no payment exists
// for the transaction, which callers treat as "nothing to undo". Replaying a
// refund updates the row in place and changes nothing.
func (s *Store) Refund(ctx context.Context, orderID, transactionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $3, updated_at = NOW()
		WHERE order_id = $1 AND transaction_id = $2`,
		orderID, transactionID, string(PaymentRefund),
	)
	if err != nil {
		return false, fmt.Errorf("refund payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
