package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Status transitions are monotonic: an order never leaves a terminal state
// and never moves backwards.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusConfirmed: true, OrderStatusCancelled: true},
	OrderStatusConfirmed: {OrderStatusCancelled: true},
	OrderStatusCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

type OrderItem struct {
	ProductID       string `json:"product_id"`
	Quantity        int    `json:"quantity"`
	PriceCentsAtBuy int64  `json:"price_cents_at_purchase"`
}

type Order struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"session_id"`
	Items           []OrderItem   `json:"items"`
	TotalCents      int64         `json:"total_cents"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	ShippingAddress string        `json:"shipping_address"`
	PaymentMethod   string        `json:"payment_method"`
	CreatedAt       time.Time     `json:"created_at"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
	Payment         *Payment      `json:"payment,omitempty"`
}

// ItemsTotalCents is the exact total an order must carry at creation time.
// Money is integer cents everywhere; no floating point.
func ItemsTotalCents(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.PriceCentsAtBuy
	}
	return total
}
