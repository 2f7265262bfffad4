package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrMissingAddress     = errors.New("shipping address is required")
	ErrOrderNotFound      = errors.New("order not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotCancelable = errors.New("order can no longer be cancelled")
)

// InsufficientStockError reports the product that blocked a checkout and how
// many units were actually available, so the caller can offer to adjust the
// cart.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// PaymentDeclinedError carries the cancelled order's ID so the client can
// still inspect it.
type PaymentDeclinedError struct {
	OrderID string
	Reason  string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined for order %s: %s", e.OrderID, e.Reason)
}
