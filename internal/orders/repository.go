package orders

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
)

// Repository is the order read model: fully hydrated orders with their
// items and payment. Writes go through the checkout repository.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, status, payment_status, total_cents,
		       shipping_address, payment_method, created_at, confirmed_at, cancelled_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.SessionID, &order.Status, &order.PaymentStatus,
		&order.TotalCents, &order.ShippingAddress, &order.PaymentMethod,
		&order.CreatedAt, &order.ConfirmedAt, &order.CancelledAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	if err := r.loadPayment(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// ListBySession returns the session's orders, newest first. An empty status
// returns all of them.
func (r *Repository) ListBySession(ctx context.Context, sessionID string, status domain.OrderStatus) ([]domain.Order, error) {
	query := `
		SELECT id, session_id, status, payment_status, total_cents,
		       shipping_address, payment_method, created_at, confirmed_at, cancelled_at
		FROM orders
		WHERE session_id = $1
	`
	args := []any{sessionID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID, &order.SessionID, &order.Status, &order.PaymentStatus,
			&order.TotalCents, &order.ShippingAddress, &order.PaymentMethod,
			&order.CreatedAt, &order.ConfirmedAt, &order.CancelledAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
		if err := r.loadPayment(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

func (r *Repository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, price_cents_at_purchase
		FROM order_items
		WHERE order_id = $1
	`, order.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.PriceCentsAtBuy); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

func (r *Repository) loadPayment(ctx context.Context, order *domain.Order) error {
	pay := &domain.Payment{}
	var txnID sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount_cents, status, transaction_id, processed_at
		FROM payments
		WHERE order_id = $1
	`, order.ID).Scan(&pay.ID, &pay.OrderID, &pay.AmountCents, &pay.Status, &txnID, &pay.ProcessedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}

	pay.TransactionID = txnID.String
	order.Payment = pay
	return nil
}
