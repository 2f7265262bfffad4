package domain

import "time"

// CartEntry is one product line in a session's cart. The price is a snapshot
// taken when the item was added; it does not track later catalog changes.
type CartEntry struct {
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	PriceCents int64     `json:"price_cents"`
	Title      string    `json:"title"`
	AddedAt    time.Time `json:"added_at"`
}

type Product struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	PriceCents int64     `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
}
