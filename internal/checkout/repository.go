package checkout

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
	"github.com/joao-fontenele/checkout-flow/internal/stockledger"
)

// Repository owns the multi-table transactions of the checkout flow: each
// state transition of an order and its ledger mirror commits or rolls back
// as one unit.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreatePending persists the order and its items as pending and mirrors the
// cache reservation into the ledger, all in one transaction. The mirror is
// the durable counterpart of the cache hold: if the cache is lost, the
// ledger's reserved column still says which units are spoken for.
func (r *Repository) CreatePending(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, session_id, status, payment_status, total_cents, shipping_address, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, order.ID, order.SessionID, domain.OrderStatusPending, domain.PaymentStatusPending,
		order.TotalCents, order.ShippingAddress, order.PaymentMethod, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price_cents_at_purchase)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.NewString(), order.ID, item.ProductID, item.Quantity, item.PriceCentsAtBuy)
		if err != nil {
			return err
		}

		if err := stockledger.ReserveTx(ctx, tx, order.ID, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Confirm commits the reserved stock (on_hand and reserved drop together),
// marks the order confirmed and records the successful payment. Only a
// pending order can be confirmed.
func (r *Repository) Confirm(ctx context.Context, orderID string, pay domain.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, confirmed_at = NOW()
		WHERE id = $1 AND status = $4
	`, orderID, domain.OrderStatusConfirmed, domain.PaymentStatusSucceeded, domain.OrderStatusPending)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("order %s is not pending", orderID)
	}

	if err := stockledger.SettleTx(ctx, tx, orderID, domain.ReservationCommitted); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount_cents, status, transaction_id, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), orderID, pay.AmountCents, domain.PaymentStatusSucceeded, pay.TransactionID, pay.ProcessedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// CancelPending releases the ledger reservation and marks a pending order
// cancelled. The order row is kept for audit; the failed payment attempt is
// recorded when one was made.
func (r *Repository) CancelPending(ctx context.Context, orderID string, pay *domain.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, cancelled_at = NOW()
		WHERE id = $1 AND status = $4
	`, orderID, domain.OrderStatusCancelled, domain.PaymentStatusFailed, domain.OrderStatusPending)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		// Already settled one way or the other; nothing to compensate.
		return nil
	}

	if err := stockledger.SettleTx(ctx, tx, orderID, domain.ReservationReleased); err != nil {
		return err
	}

	if pay != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, amount_cents, status, transaction_id, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (order_id) DO NOTHING
		`, uuid.NewString(), orderID, pay.AmountCents, domain.PaymentStatusFailed, pay.TransactionID, pay.ProcessedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CancelConfirmed handles a user cancelling a confirmed, not yet shipped
// order: committed stock goes back on hand and the payment flips to
// refunded.
func (r *Repository) CancelConfirmed(ctx context.Context, orderID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, cancelled_at = NOW()
		WHERE id = $1 AND status = $4
	`, orderID, domain.OrderStatusCancelled, domain.PaymentStatusRefunded, domain.OrderStatusConfirmed)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrOrderNotCancelable
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return err
	}

	type line struct {
		productID string
		qty       int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			_ = rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, l := range lines {
		if err := stockledger.RestockTx(ctx, tx, l.productID, l.qty); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments SET status = $2 WHERE order_id = $1
	`, orderID, domain.PaymentStatusRefunded)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ExpiredPending lists orders stuck in pending longer than the cutoff,
// items included, so the sweeper can compensate them.
func (r *Repository) ExpiredPending(ctx context.Context, olderThan time.Time) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.session_id, i.product_id, i.quantity, i.price_cents_at_purchase
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE o.status = $1 AND o.created_at < $2
		ORDER BY o.created_at
	`, domain.OrderStatusPending, olderThan)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*domain.Order)
	var ids []string
	for rows.Next() {
		var orderID, sessionID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &sessionID, &item.ProductID, &item.Quantity, &item.PriceCentsAtBuy); err != nil {
			return nil, err
		}
		order, ok := byID[orderID]
		if !ok {
			order = &domain.Order{ID: orderID, SessionID: sessionID, Status: domain.OrderStatusPending}
			byID[orderID] = order
			ids = append(ids, orderID)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, *byID[id])
	}
	return orders, nil
}
