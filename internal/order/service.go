package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/pkg/cache"
	"orderflow/internal/saga"
)

var (
	// ErrMissingFilters is returned when a query names neither orderId nor
	// transactionId.
	ErrMissingFilters = errors.New("OrderID or TransactionID must be informed.")
	// ErrEventNotFound is returned when no envelope matches the filter.
	ErrEventNotFound = errors.New("event not found by informed filter")
	// ErrEmptyOrder is returned when an order carries no line items.
	ErrEmptyOrder = errors.New("Product list is empty!")
)

// Repository is the persistence surface the service needs. *EventStore
// satisfies it; tests use a fake.
type Repository interface {
	SaveOrder(ctx context.Context, o saga.Order) error
	Save(ctx context.Context, ev saga.Event) (saga.Event, error)
	FindLatestByOrderID(ctx context.Context, orderID string) (saga.Event, error)
	FindLatestByTransactionID(ctx context.Context, transactionID string) (saga.Event, error)
	FindAllOrderedByRecencyDesc(ctx context.Context) ([]saga.Event, error)
}

// Service starts sagas, records ending notifications and answers history
// queries. Reads go through the redis cache; writes invalidate by key TTL.
type Service struct {
	store     Repository
	forwarder saga.Forwarder
	cache     cache.Cache
	cacheTTL  time.Duration
}

// NewService wires the order service. cache may be nil, in which case every
// read hits the store.
func NewService(store Repository, forwarder saga.Forwarder, c cache.Cache, cacheTTL time.Duration) *Service {
	return &Service{store: store, forwarder: forwarder, cache: c, cacheTTL: cacheTTL}
}

// StartSaga persists the order and publishes the first hop. The transaction
// id is unique per attempt so a resubmitted order gets a fresh idempotency
// scope at every step.
func (s *Service) StartSaga(ctx context.Context, products []saga.OrderProduct) (saga.Event, error) {
	if len(products) == 0 {
		return saga.Event{}, ErrEmptyOrder
	}

	now := time.Now().UTC()
	o := saga.Order{
		ID:            uuid.NewString(),
		TransactionID: fmt.Sprintf("%d_%s", now.UnixMilli(), uuid.NewString()),
		Products:      products,
		CreatedAt:     now,
	}
	for _, item := range products {
		o.TotalAmount += item.Product.UnitValue * float64(item.Quantity)
		o.TotalItems += item.Quantity
	}

	if err := s.store.SaveOrder(ctx, o); err != nil {
		return saga.Event{}, err
	}

	ev := saga.Event{
		OrderID:       o.ID,
		TransactionID: o.TransactionID,
		Payload:       o,
		Status:        saga.StatusPending,
	}
	ev = ev.Next(saga.SourceOrder, saga.StatusSuccess, "Saga started!")

	if _, err := s.store.Save(ctx, ev); err != nil {
		return saga.Event{}, err
	}
	if err := s.forwarder.Forward(ctx, ev); err != nil {
		return saga.Event{}, err
	}

	slog.InfoContext(ctx, "saga started",
		"orderId", ev.OrderID, "transactionId", ev.TransactionID)
	return ev, nil
}

// NotifyEnding records the terminal envelope. SUCCESS closes the saga as
// completed; anything else means the rollback chain is exhausted, so the
// envelope is stamped with the explicit ROLLED_BACK terminal marker instead
// of overloading FAIL.
func (s *Service) NotifyEnding(ctx context.Context, ev saga.Event) (saga.Event, error) {
	var final saga.Event
	if ev.Status == saga.StatusSuccess {
		final = ev.Next(saga.SourceOrder, saga.StatusSuccess, "Saga finished successfully!")
		slog.InfoContext(ctx, "saga finished successfully",
			"orderId", ev.OrderID, "transactionId", ev.TransactionID)
	} else {
		final = ev.Next(saga.SourceOrder, saga.StatusRolledBack, "Saga finished with errors!")
		slog.WarnContext(ctx, "saga finished with errors",
			"orderId", ev.OrderID, "transactionId", ev.TransactionID,
			"lastStatus", string(ev.Status))
	}
	return s.store.Save(ctx, final)
}

// FindByFilters returns the latest envelope matching orderID or, when empty,
// transactionID. At least one filter is required.
func (s *Service) FindByFilters(ctx context.Context, orderID, transactionID string) (saga.Event, error) {
	if orderID == "" && transactionID == "" {
		return saga.Event{}, ErrMissingFilters
	}

	key, lookup := s.lookup(orderID, transactionID)

	if ev, ok := s.cachedEvent(ctx, key); ok {
		return ev, nil
	}

	ev, err := lookup(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saga.Event{}, ErrEventNotFound
		}
		return saga.Event{}, err
	}

	s.cacheEvent(ctx, key, ev)
	return ev, nil
}

// FindAll returns every stored envelope, newest first.
func (s *Service) FindAll(ctx context.Context) ([]saga.Event, error) {
	return s.store.FindAllOrderedByRecencyDesc(ctx)
}

func (s *Service) lookup(orderID, transactionID string) (string, func(context.Context) (saga.Event, error)) {
	if orderID != "" {
		return "order:" + orderID, func(ctx context.Context) (saga.Event, error) {
			return s.store.FindLatestByOrderID(ctx, orderID)
		}
	}
	return "transaction:" + transactionID, func(ctx context.Context) (saga.Event, error) {
		return s.store.FindLatestByTransactionID(ctx, transactionID)
	}
}

func (s *Service) cachedEvent(ctx context.Context, key string) (saga.Event, bool) {
	if s.cache == nil {
		return saga.Event{}, false
	}
	raw, err := s.cache.Get(ctx, s.cache.GenerateKey("event", key))
	if err != nil {
		slog.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		return saga.Event{}, false
	}
	if raw == "" {
		return saga.Event{}, false
	}
	var ev saga.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return saga.Event{}, false
	}
	return ev, true
}

func (s *Service) cacheEvent(ctx context.Context, key string, ev saga.Event) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.GenerateKey("event", key), string(raw), s.cacheTTL); err != nil {
		slog.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}
