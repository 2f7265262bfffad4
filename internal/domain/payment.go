package domain

import "time"

type Payment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"order_id"`
	AmountCents   int64         `json:"amount_cents"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	ProcessedAt   time.Time     `json:"processed_at"`
}
