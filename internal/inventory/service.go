package inventory

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/saga"
)

// Reserver is the store surface the step needs. *Store satisfies it; tests
// use a fake.
type Reserver interface {
	Reserve(ctx context.Context, orderID, transactionID string, items []saga.OrderProduct) error
	ReservationCompensated(ctx context.Context, orderID, transactionID string) (bool, error)
	Restore(ctx context.Context, orderID, transactionID string) (int, error)
}

// Service implements saga.Step for the inventory reservation step.
type Service struct {
	store Reserver
}

// NewService constructs the inventory step.
func NewService(store Reserver) *Service {
	return &Service{store: store}
}

// Source implements saga.Step.
func (s *Service) Source() string { return saga.SourceInventory }

// Execute reserves stock for every line item of the order.
func (s *Service) Execute(ctx context.Context, ev saga.Event) (saga.Outcome, error) {
	if ev.OrderID == "" || ev.TransactionID == "" {
		return saga.BusinessFailure("OrderID and TransactionID must be informed!"), nil
	}
	if len(ev.Payload.Products) == 0 {
		return saga.BusinessFailure("Product list is empty!"), nil
	}

	err := s.store.Reserve(ctx, ev.OrderID, ev.TransactionID, ev.Payload.Products)
	switch {
	case err == nil:
		return saga.Success(), nil
	case errors.Is(err, saga.ErrDuplicateTransaction):
		return s.recordedOutcome(ctx, ev)
	case errors.Is(err, ErrOutOfStock):
		return saga.BusinessFailure("Product is out of stock!"), nil
	case errors.Is(err, ErrInventoryNotFound):
		return saga.BusinessFailure("Inventory not found by informed product."), nil
	default:
		return saga.Outcome{}, fmt.Errorf("reserve inventory: %w", err)
	}
}

// recordedOutcome resolves the direction of a duplicate delivery from the
// reservation records left by the first one. A compensated reservation means
// the saga has already been rolled back past this step; a redelivered execute
// must keep pushing backward instead of stamping the saga successful.
func (s *Service) recordedOutcome(ctx context.Context, ev saga.Event) (saga.Outcome, error) {
	compensated, err := s.store.ReservationCompensated(ctx, ev.OrderID, ev.TransactionID)
	if err != nil {
		return saga.Outcome{}, fmt.Errorf("load recorded reservation: %w", err)
	}
	if compensated {
		return saga.Duplicate(saga.StatusRollbackPending), nil
	}
	return saga.Duplicate(saga.StatusSuccess), nil
}

// Compensate restores the quantities recorded at reservation time. A missing
// record means this step never ran for the transaction; that is a no-op, not
// an error.
func (s *Service) Compensate(ctx context.Context, ev saga.Event) (string, error) {
	restored, err := s.store.Restore(ctx, ev.OrderID, ev.TransactionID)
	if err != nil {
		return "", fmt.Errorf("restore inventory: %w", err)
	}
	if restored == 0 {
		return "Nothing to roll back on inventory.", nil
	}
	return "Rollback executed on inventory!", nil
}
