// Package httpx serves the order API: saga starts and the audit/history read
// path. Saga outcome is only observable here — there is no synchronous caller
// waiting on completion, POST answers as soon as the first hop is published.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"orderflow/internal/order"
)

// Handler handles incoming HTTP requests for the order service.
type Handler struct {
	service *order.Service
}

// NewHandler initializes the handler with the order service.
func NewHandler(service *order.Service) *Handler {
	return &Handler{service: service}
}

// CreateOrder receives the order, persists it and triggers the saga.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	for _, p := range req.Products {
		if p.Product.Code == "" || p.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_item",
				"product code and a positive quantity are required")
			return
		}
	}

	ev, err := h.service.StartSaga(r.Context(), req.toProducts())
	if err != nil {
		if errors.Is(err, order.ErrEmptyOrder) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "failed to start saga", "error", err)
		writeError(w, http.StatusInternalServerError, "saga_start_failed", "")
		return
	}

	writeJSON(w, http.StatusAccepted, StartSagaResponse{
		OrderID:       ev.OrderID,
		TransactionID: ev.TransactionID,
		Status:        string(ev.Status),
	})
}

// GetEvent returns the latest envelope for ?orderId= or ?transactionId=.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	transactionID := r.URL.Query().Get("transactionId")

	ev, err := h.service.FindByFilters(r.Context(), orderID, transactionID)
	switch {
	case errors.Is(err, order.ErrMissingFilters):
		writeError(w, http.StatusBadRequest, "missing_filters", err.Error())
	case errors.Is(err, order.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event_not_found", "")
	case err != nil:
		slog.ErrorContext(r.Context(), "event lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "lookup_failed", "")
	default:
		writeJSON(w, http.StatusOK, ev)
	}
}

// ListEvents returns every stored envelope, newest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.FindAll(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "event listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "listing_failed", "")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
