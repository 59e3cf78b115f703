package models

import "github.com/shopspring/decimal"

// Order contracts against the external Order Service.

// OrderLine is one ordered item as submitted to the Order Service.
type OrderLine struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Options   map[string]string `json:"options,omitempty"`
}

// OrderRequest is the create-order payload.
type OrderRequest struct {
	RequestID       string          `json:"request_id"`
	WaID            string          `json:"wa_id"`
	CustomerID      string          `json:"customer_id,omitempty"`
	ShopID          string          `json:"shop_id"`
	Lines           []OrderLine     `json:"lines"`
	Total           decimal.Decimal `json:"total"`
	DeliveryKind    DeliveryKind    `json:"delivery_kind"`
	DeliveryAddress string          `json:"delivery_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
}

// Order is the Order Service's view of a placed order.
type Order struct {
	OrderID       string          `json:"order_id"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	PaymentStatus string          `json:"payment_status"`
}

// Order statuses reported by the Order Service.
const (
	OrderStatusCreated   = "created"
	OrderStatusCancelled = "cancelled"
)

// Payment statuses recorded against an order.
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusFailed = "failed"
)
