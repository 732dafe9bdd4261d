package httpx

import "orderflow/internal/saga"

type CreateOrderRequest struct {
	Products []OrderProductDTO `json:"products"`
}

type OrderProductDTO struct {
	Product  ProductDTO `json:"product"`
	Quantity int        `json:"quantity"`
}

type ProductDTO struct {
	Code      string  `json:"code"`
	UnitValue float64 `json:"unitValue"`
}

type StartSagaResponse struct {
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (r CreateOrderRequest) toProducts() []saga.OrderProduct {
	items := make([]saga.OrderProduct, 0, len(r.Products))
	for _, p := range r.Products {
		items = append(items, saga.OrderProduct{
			Product: saga.Product{
				Code:      p.Product.Code,
				UnitValue: p.Product.UnitValue,
			},
			Quantity: p.Quantity,
		})
	}
	return items
}
