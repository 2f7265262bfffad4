package catalog

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
)

// Repository serves product reference data. Reads route through the
// injected ReplicaPicker; this data is read-only to the checkout core.
type Repository struct {
	picker ReplicaPicker
}

func NewRepository(picker ReplicaPicker) *Repository {
	return &Repository{picker: picker}
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}

	err := r.picker.Pick(ctx).QueryRowContext(ctx, `
		SELECT id, title, price_cents, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Title, &product.PriceCents, &product.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return product, nil
}

func (r *Repository) ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	rows, err := r.picker.Pick(ctx).QueryContext(ctx, `
		SELECT id, title, price_cents, created_at
		FROM products
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.PriceCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}
