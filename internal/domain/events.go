package domain

import "time"

const (
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderCancelled = "order.cancelled"
	TopicStockRestocked = "stock.restocked"
)

type OrderConfirmedEvent struct {
	OrderID    string      `json:"order_id"`
	SessionID  string      `json:"session_id"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"total_cents"`
	Timestamp  time.Time   `json:"timestamp"`
}

// StockRestockedEvent announces that committed stock went back on hand,
// e.g. after a confirmed order was cancelled.
type StockRestockedEvent struct {
	OrderID   string      `json:"order_id"`
	Items     []OrderItem `json:"items"`
	Timestamp time.Time   `json:"timestamp"`
}

type OrderCancelledEvent struct {
	OrderID   string      `json:"order_id"`
	SessionID string      `json:"session_id"`
	Items     []OrderItem `json:"items"`
	Reason    string      `json:"reason"`
	Timestamp time.Time   `json:"timestamp"`
}
