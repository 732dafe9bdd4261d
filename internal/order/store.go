// Package order starts sagas and owns the read path: every envelope that
// reaches the notify-ending topic is persisted here, and the HTTP API serves
// the audit trail back out.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"orderflow/internal/saga"
)

// EventStore persists envelope snapshots in Postgres. The events table is
// append-only: one row per saved envelope, the latest row per key is the
// current state.
type EventStore struct {
	db *sql.DB
}

// NewEventStore constructs an EventStore backed by Postgres.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// InitSchema creates the tables if they do not exist.
func (s *EventStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			payload JSONB NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			total_items INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			payload JSONB NOT NULL,
			history JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_order_id ON events (order_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_transaction_id ON events (transaction_id, created_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveOrder persists the order that starts a saga.
func (s *EventStore) SaveOrder(ctx context.Context, o saga.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, transaction_id, payload, total_amount, total_items, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.TransactionID, payload, o.TotalAmount, o.TotalItems, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

// Save appends one envelope snapshot and returns it unchanged.
func (s *EventStore) Save(ctx context.Context, ev saga.Event) (saga.Event, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return saga.Event{}, fmt.Errorf("encode payload: %w", err)
	}
	history, err := json.Marshal(ev.History)
	if err != nil {
		return saga.Event{}, fmt.Errorf("encode history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, order_id, transaction_id, source, status, payload, history, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), ev.OrderID, ev.TransactionID, ev.Source, string(ev.Status),
		payload, history, ev.CreatedAt,
	)
	if err != nil {
		return saga.Event{}, fmt.Errorf("save event: %w", err)
	}
	return ev, nil
}

// FindLatestByOrderID returns the most recent envelope for the order.
func (s *EventStore) FindLatestByOrderID(ctx context.Context, orderID string) (saga.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, transaction_id, source, status, payload, history, created_at
		FROM events
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		orderID,
	)
	return scanEvent(row)
}

// FindLatestByTransactionID returns the most recent envelope for the saga attempt.
func (s *EventStore) FindLatestByTransactionID(ctx context.Context, transactionID string) (saga.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, transaction_id, source, status, payload, history, created_at
		FROM events
		WHERE transaction_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		transactionID,
	)
	return scanEvent(row)
}

// FindAllOrderedByRecencyDesc returns every stored envelope, newest first.
func (s *EventStore) FindAllOrderedByRecencyDesc(ctx context.Context) ([]saga.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, transaction_id, source, status, payload, history, created_at
		FROM events
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []saga.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (saga.Event, error) {
	var ev saga.Event
	var status string
	var payload, history []byte

	err := row.Scan(&ev.OrderID, &ev.TransactionID, &ev.Source, &status, &payload, &history, &ev.CreatedAt)
	if err != nil {
		return saga.Event{}, err
	}
	ev.Status = saga.Status(status)
	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return saga.Event{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(history, &ev.History); err != nil {
		return saga.Event{}, fmt.Errorf("decode history: %w", err)
	}
	return ev, nil
}
