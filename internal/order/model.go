package order

import "time"

type OrderStatus string

const (
	// StatusPaid is the only status an order is created with: orders exist
	// only after the payment processor confirmed the charge.
	StatusPaid OrderStatus = "PAID"
)

type Order struct {
	ID          uint        `json:"id"`
	UserID      uint        `json:"user_id"`
	CheckoutKey string      `json:"checkout_key"`
	Total       int64       `json:"total"`
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`
	Items       []OrderItem `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
}

type OrderItem struct {
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}
