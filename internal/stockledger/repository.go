package stockledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
)

// Ledger is the store of record for stock. Every mutation is a single
// conditional UPDATE so concurrent callers can never push reserved past
// on_hand, and the stock_reservations table keys release/commit by order so
// compensation retries are no-ops instead of double decrements.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) GetStock(ctx context.Context, productID string) (*domain.StockLevel, error) {
	stock := &domain.StockLevel{}

	err := l.db.QueryRowContext(ctx, `
		SELECT product_id, on_hand, reserved
		FROM stock_levels
		WHERE product_id = $1
	`, productID).Scan(&stock.ProductID, &stock.OnHand, &stock.Reserved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return stock, nil
}

// Snapshot reads current levels for a set of products. Checkout always
// calls this directly; availability never goes through the catalog cache.
func (l *Ledger) Snapshot(ctx context.Context, productIDs []string) (map[string]domain.StockLevel, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT product_id, on_hand, reserved
		FROM stock_levels
		WHERE product_id = ANY($1)
	`, pq.Array(productIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	levels := make(map[string]domain.StockLevel, len(productIDs))
	for rows.Next() {
		var stock domain.StockLevel
		if err := rows.Scan(&stock.ProductID, &stock.OnHand, &stock.Reserved); err != nil {
			return nil, err
		}
		levels[stock.ProductID] = stock
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return levels, nil
}

// The write side is transaction-composable: callers own the transaction so
// ledger movements commit or roll back together with the order rows they
// belong to.

// ReserveTx allocates qty units to orderID. The UPDATE only matches while
// the post-increment reserved stays within on_hand; losing the race returns
// an InsufficientStockError with the availability at refusal time.
func ReserveTx(ctx context.Context, tx *sql.Tx, orderID, productID string, qty int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE stock_levels
		SET reserved = reserved + $2, updated_at = NOW()
		WHERE product_id = $1 AND reserved + $2 <= on_hand
	`, productID, qty)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var available int
		err := tx.QueryRowContext(ctx, `
			SELECT on_hand - reserved FROM stock_levels WHERE product_id = $1
		`, productID).Scan(&available)
		if err == sql.ErrNoRows {
			return domain.ErrProductNotFound
		}
		if err != nil {
			return err
		}
		return &domain.InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_reservations (order_id, product_id, qty, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, product_id) DO NOTHING
	`, orderID, productID, qty, domain.ReservationReserved)
	return err
}

// SettleTx flips every RESERVED row of the order to the target status and
// applies the matching ledger arithmetic: COMMITTED takes the units out of
// on_hand for good, RELEASED returns them to the available pool. Keying on
// the row status makes a second settle a no-op.
func SettleTx(ctx context.Context, tx *sql.Tx, orderID string, target domain.ReservationStatus) error {
	var levelQuery string
	switch target {
	case domain.ReservationCommitted:
		levelQuery = `UPDATE stock_levels
			SET on_hand = on_hand - $2, reserved = reserved - $2, updated_at = NOW()
			WHERE product_id = $1`
	case domain.ReservationReleased:
		levelQuery = `UPDATE stock_levels
			SET reserved = GREATEST(reserved - $2, 0), updated_at = NOW()
			WHERE product_id = $1`
	default:
		return fmt.Errorf("unexpected reservation target %q", target)
	}

	rows, err := tx.QueryContext(ctx, `
		UPDATE stock_reservations
		SET status = $2
		WHERE order_id = $1 AND status = $3
		RETURNING product_id, qty
	`, orderID, target, domain.ReservationReserved)
	if err != nil {
		return err
	}

	type settled struct {
		productID string
		qty       int
	}
	var all []settled
	for rows.Next() {
		var s settled
		if err := rows.Scan(&s.productID, &s.qty); err != nil {
			_ = rows.Close()
			return err
		}
		all = append(all, s)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, s := range all {
		if _, err := tx.ExecContext(ctx, levelQuery, s.productID, s.qty); err != nil {
			return err
		}
	}

	return nil
}

// RestockTx puts units back on hand, the inverse of a committed sale. Used
// when a confirmed order is cancelled before shipping.
func RestockTx(ctx context.Context, tx *sql.Tx, productID string, qty int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE stock_levels
		SET on_hand = on_hand + $2, updated_at = NOW()
		WHERE product_id = $1
	`, productID, qty)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}
