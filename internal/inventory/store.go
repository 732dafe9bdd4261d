// Package inventory is the saga step that reserves stock: it decrements the
// available quantity per line item and keeps a per-transaction record of the
// old and new quantities so the reservation can be compensated later.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderflow/internal/saga"
)

// Business failures surfaced by the store. These become ROLLBACK_PENDING
// history entries, never transport errors.
var (
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInventoryNotFound = errors.New("inventory not found by informed product")
)

// Line is one compensation record: everything needed to restore a product to
// its pre-reservation quantity.
type Line struct {
	OrderID       string
	TransactionID string
	ProductCode   string
	OldQuantity   int
	OrderQuantity int
	NewQuantity   int
}

// Store owns the inventory and order_inventory tables.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store backed by Postgres.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			product_code TEXT PRIMARY KEY,
			available INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_inventory (
			order_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			product_code TEXT NOT NULL,
			old_quantity INTEGER NOT NULL,
			order_quantity INTEGER NOT NULL,
			new_quantity INTEGER NOT NULL,
			compensated_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (order_id, transaction_id, product_code)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Seed upserts available quantities, used at startup for local runs.
func (s *Store) Seed(ctx context.Context, available map[string]int) error {
	for code, qty := range available {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO inventory (product_code, available)
			VALUES ($1, $2)
			ON CONFLICT (product_code) DO UPDATE SET available = EXCLUDED.available`,
			code, qty,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Reserve checks availability and decrements stock for every line item, and
// writes the compensation records, all in one transaction. The record insert
// uses ON CONFLICT DO NOTHING as the idempotency gate: zero affected rows
// means this (orderId, transactionId) was already reserved and the whole
// transaction rolls back with saga.ErrDuplicateTransaction, leaving the first
// reservation untouched.
func (s *Store) Reserve(ctx context.Context, orderID, transactionID string, items []saga.OrderProduct) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, item := range items {
		var available int
		row := tx.QueryRowContext(ctx, `
			SELECT available FROM inventory
			WHERE product_code = $1
			FOR UPDATE`,
			item.Product.Code,
		)
		if err = row.Scan(&available); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInventoryNotFound
			}
			return fmt.Errorf("lock inventory %s: %w", item.Product.Code, err)
		}

		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO order_inventory
				(order_id, transaction_id, product_code, old_quantity, order_quantity, new_quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (order_id, transaction_id, product_code) DO NOTHING`,
			orderID, transactionID, item.Product.Code,
			available, item.Quantity, available-item.Quantity,
		)
		if execErr != nil {
			err = fmt.Errorf("record reservation %s: %w", item.Product.Code, execErr)
			return err
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			err = raErr
			return err
		}
		if affected == 0 {
			err = saga.ErrDuplicateTransaction
			return err
		}

		if item.Quantity > available {
			err = ErrOutOfStock
			return err
		}

		if _, err = tx.ExecContext(ctx, `
			UPDATE inventory SET available = available - $2
			WHERE product_code = $1`,
			item.Product.Code, item.Quantity,
		); err != nil {
			err = fmt.Errorf("decrement inventory %s: %w", item.Product.Code, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reserve: %w", err)
	}
	return nil
}

// ReservationCompensated reports whether the recorded reservation for the
// transaction was already rolled back.
func (s *Store) ReservationCompensated(ctx context.Context, orderID, transactionID string) (bool, error) {
	var compensated bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM order_inventory
			WHERE order_id = $1 AND transaction_id = $2 AND compensated_at IS NOT NULL
		)`,
		orderID, transactionID,
	).Scan(&compensated)
	if err != nil {
		return false, fmt.Errorf("check reservation: %w", err)
	}
	return compensated, nil
}

// Restore puts every product touched by (orderID, transactionID) back to its
// recorded old quantity. The restore is absolute, so replaying it cannot
// double-restore; compensated_at is updated in place on every run. It returns
// the number of lines restored — zero means this step never ran for the
// transaction and there is nothing to undo.
func (s *Store) Restore(ctx context.Context, orderID, transactionID string) (restored int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin restore: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT product_code, old_quantity FROM order_inventory
		WHERE order_id = $1 AND transaction_id = $2
		FOR UPDATE`,
		orderID, transactionID,
	)
	if err != nil {
		return 0, fmt.Errorf("load reservation: %w", err)
	}

	type lineRef struct {
		code string
		old  int
	}
	var lines []lineRef
	for rows.Next() {
		var l lineRef
		if err = rows.Scan(&l.code, &l.old); err != nil {
			rows.Close()
			return 0, err
		}
		lines = append(lines, l)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, l := range lines {
		if _, err = tx.ExecContext(ctx, `
			UPDATE inventory SET available = $2
			WHERE product_code = $1`,
			l.code, l.old,
		); err != nil {
			return 0, fmt.Errorf("restore inventory %s: %w", l.code, err)
		}
	}

	if len(lines) > 0 {
		if _, err = tx.ExecContext(ctx, `
			UPDATE order_inventory SET compensated_at = NOW()
			WHERE order_id = $1 AND transaction_id = $2`,
			orderID, transactionID,
		); err != nil {
			return 0, fmt.Errorf("mark compensated: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit restore: %w", err)
	}
	return len(lines), nil
}
