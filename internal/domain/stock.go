package domain

// StockLevel mirrors one row of the stock ledger. Available stock is always
// derived, never stored: on_hand minus reserved is the only quantity ever
// offered for sale.
type StockLevel struct {
	ProductID string `json:"product_id"`
	OnHand    int    `json:"on_hand"`
	Reserved  int    `json:"reserved"`
}

func (s StockLevel) Available() int {
	return s.OnHand - s.Reserved
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationCommitted ReservationStatus = "COMMITTED"
)
