// Package product is the saga step that validates every line item against
// the product catalog and records a per-transaction validation marker.
package product

import (
	"context"
	"database/sql"
	"fmt"

	"orderflow/internal/saga"
)

// Store owns the products and validations tables.
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
		`CREATE TABLE IF NOT EXISTS products (
			code TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS validations (
			order_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (order_id, transaction_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Seed inserts catalog codes, used at startup for local runs.
func (s *Store) Seed(ctx context.Context, codes []string) error {
	for _, code := range codes {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO products (code) VALUES ($1)
			ON CONFLICT (code) DO NOTHING`,
			code,
		); err != nil {
			return err
		}
	}
	return nil
}

// ProductExists reports whether the catalog knows the code.
func (s *Store) ProductExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product %s: %w", code, err)
	}
	return exists, nil
}

// SaveValidation records the validation outcome for the transaction. The
// insert is the idempotency gate: a conflicting row means this transaction
// was already validated and saga.ErrDuplicateTransaction is returned.
func (s *Store) SaveValidation(ctx context.Context, orderID, transactionID string, success bool) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO validations (order_id, transaction_id, success)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, transaction_id) DO NOTHING`,
		orderID, transactionID, success,
	)
	if err != nil {
		return fmt.Errorf("save validation: %w", err)
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

// FindValidation returns the recorded validation outcome for the transaction.
func (s *Store) FindValidation(ctx context.Context, orderID, transactionID string) (success bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT success FROM validations
		WHERE order_id = $1 AND transaction_id = $2`,
		orderID, transactionID,
	).Scan(&success)
	if err != nil {
		return false, fmt.Errorf("find validation: %w", err)
	}
	return success, nil
}

// MarkValidationFailed flips the validation to failed, creating the row when
// this step never ran for the transaction. Safe to replay.
func (s *Store) MarkValidationFailed(ctx context.Context, orderID, transactionID string) (existed bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE validations SET success = FALSE
		WHERE order_id = $1 AND transaction_id = $2`,
		orderID, transactionID,
	)
	if err != nil {
		return false, fmt.Errorf("mark validation failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO validations (order_id, transaction_id, success)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (order_id, transaction_id) DO UPDATE SET success = FALSE`,
		orderID, transactionID,
	); err != nil {
		return false, fmt.Errorf("record failed validation: %w", err)
	}
	return false, nil
}
