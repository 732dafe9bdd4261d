package payment

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/saga"
)

// minAmount is the smallest chargeable total.
const minAmount = 0.1

// Charger is the store surface the step needs. *Store satisfies it.
type Charger interface {
	SavePayment(ctx context.Context, p Payment) error
	FindPayment(ctx context.Context, orderID, transactionID string) (Payment, error)
	Refund(ctx context.Context, orderID, transactionID string) (bool, error)
}

// Service implements saga.Step for the payment step.
type Service struct {
	store Charger
}

// NewService constructs the payment step.
func NewService(store Charger) *Service {
	return &Service{store: store}
}

// Source implements saga.Step.
func (s *Service) Source() string { return saga.SourcePayment }

// Execute totals the line items and records the charge. The payment insert is
// the idempotency gate, so the money movement cannot be applied twice for one
// transaction attempt.
func (s *Service) Execute(ctx context.Context, ev saga.Event) (saga.Outcome, error) {
	if ev.OrderID == "" || ev.TransactionID == "" {
		return saga.BusinessFailure("OrderID and TransactionID must be informed!"), nil
	}
	if len(ev.Payload.Products) == 0 {
		return saga.BusinessFailure("Product list is empty!"), nil
	}

	totalAmount, totalItems := totals(ev.Payload.Products)
	if totalAmount < minAmount {
		return saga.BusinessFailure(
			fmt.Sprintf("The minimum amount available is %.1f!", minAmount)), nil
	}

	err := s.store.SavePayment(ctx, Payment{
		OrderID:       ev.OrderID,
		TransactionID: ev.TransactionID,
		TotalAmount:   totalAmount,
		TotalItems:    totalItems,
		Status:        PaymentSuccess,
	})
	if errors.Is(err, saga.ErrDuplicateTransaction) {
		return s.recordedOutcome(ctx, ev)
	}
	if err != nil {
		return saga.Outcome{}, fmt.Errorf("charge payment: %w", err)
	}
	return saga.Success(), nil
}

// recordedOutcome resolves the direction of a duplicate delivery from the
// payment row left by the first one. A refunded payment means the saga has
// already been compensated past this step; a redelivered execute must keep
// pushing backward instead of charging the order into a dead saga.
func (s *Service) recordedOutcome(ctx context.Context, ev saga.Event) (saga.Outcome, error) {
	p, err := s.store.FindPayment(ctx, ev.OrderID, ev.TransactionID)
	if err != nil {
		return saga.Outcome{}, fmt.Errorf("load recorded payment: %w", err)
	}
	if p.Status == PaymentRefund {
		return saga.Duplicate(saga.StatusRollbackPending), nil
	}
	return saga.Duplicate(saga.StatusSuccess), nil
}

// Compensate refunds the recorded charge. No payment row means this step
// never ran for the transaction and there is nothing to undo.
func (s *Service) Compensate(ctx context.Context, ev saga.Event) (string, error) {
	refunded, err := s.store.Refund(ctx, ev.OrderID, ev.TransactionID)
	if err != nil {
		return "", fmt.Errorf("refund payment: %w", err)
	}
	if !refunded {
		return "Nothing to roll back on payment.", nil
	}
	return "Rollback executed on payment!", nil
}

func totals(items []saga.OrderProduct) (amount float64, count int) {
	for _, item := range items {
		amount += item.Product.UnitValue * float64(item.Quantity)
		count += item.Quantity
	}
	return amount, count
}
