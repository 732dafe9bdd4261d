package product

import (
	"context"
	"errors"
	"fmt"

	"orderflow/internal/saga"
)

// Catalog is the store surface the step needs. *Store satisfies it.
type Catalog interface {
	ProductExists(ctx context.Context, code string) (bool, error)
	SaveValidation(ctx context.Context, orderID, transactionID string, success bool) error
	FindValidation(ctx context.Context, orderID, transactionID string) (bool, error)
	MarkValidationFailed(ctx context.Context, orderID, transactionID string) (bool, error)
}

// Service implements saga.Step for the product validation step.
type Service struct {
	store Catalog
}

// NewService constructs the product validation step.
func NewService(store Catalog) *Service {
	return &Service{store: store}
}

// Source implements saga.Step.
func (s *Service) Source() string { return saga.SourceProductValidation }

// Execute checks the payload shape and every referenced product, then records
// the validation marker. The marker insert doubles as the duplicate gate and
// runs before the catalog lookups would be repeated on redelivery.
func (s *Service) Execute(ctx context.Context, ev saga.Event) (saga.Outcome, error) {
	if reason, ok := checkPayload(ev); !ok {
		return saga.BusinessFailure(reason), nil
	}

	if err := s.store.SaveValidation(ctx, ev.OrderID, ev.TransactionID, true); err != nil {
		if errors.Is(err, saga.ErrDuplicateTransaction) {
			return s.recordedOutcome(ctx, ev)
		}
		return saga.Outcome{}, fmt.Errorf("record validation: %w", err)
	}

	for _, item := range ev.Payload.Products {
		exists, err := s.store.ProductExists(ctx, item.Product.Code)
		if err != nil {
			return saga.Outcome{}, err
		}
		if !exists {
			// Undo the optimistic marker so a resubmitted transaction is not
			// mistaken for a processed one.
			if _, err := s.store.MarkValidationFailed(ctx, ev.OrderID, ev.TransactionID); err != nil {
				return saga.Outcome{}, err
			}
			return saga.BusinessFailure("Product does not exists in database!"), nil
		}
	}

	return saga.Success(), nil
}

// Compensate flips the validation marker to failed. There is no resource to
// restore; the marker records that this transaction must not be trusted.
func (s *Service) Compensate(ctx context.Context, ev saga.Event) (string, error) {
	existed, err := s.store.MarkValidationFailed(ctx, ev.OrderID, ev.TransactionID)
	if err != nil {
		return "", err
	}
	if !existed {
		return "Nothing to roll back on product validation.", nil
	}
	return "Rollback executed on product validation!", nil
}

// recordedOutcome resolves the direction of a duplicate delivery from the
// marker left by the first one. A marker flipped to failed (unknown product,
// or a later compensation) means the first delivery forwarded
// ROLLBACK_PENDING; a redelivery must do the same, never resurrect the saga.
func (s *Service) recordedOutcome(ctx context.Context, ev saga.Event) (saga.Outcome, error) {
	success, err := s.store.FindValidation(ctx, ev.OrderID, ev.TransactionID)
	if err != nil {
		return saga.Outcome{}, fmt.Errorf("load recorded validation: %w", err)
	}
	if success {
		return saga.Duplicate(saga.StatusSuccess), nil
	}
	return saga.Duplicate(saga.StatusRollbackPending), nil
}

func checkPayload(ev saga.Event) (reason string, ok bool) {
	if ev.OrderID == "" || ev.TransactionID == "" {
		return "OrderID and TransactionID must be informed!", false
	}
	if len(ev.Payload.Products) == 0 {
		return "Product list is empty!", false
	}
	for _, item := range ev.Payload.Products {
		if item.Product.Code == "" {
			return "Product must be informed!", false
		}
		if item.Quantity <= 0 {
			return "Product quantity must be greater than zero!", false
		}
	}
	return "", true
}
