package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/order", handler.CreateOrder)
	r.Get("/api/event", handler.GetEvent)
	r.Get("/api/events", handler.ListEvents)

	// Server spans here are the trace roots the Kafka hops hang off.
	return otelhttp.NewHandler(r, "order-api")
}
