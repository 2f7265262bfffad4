package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
)

// Cached wraps catalog reads with a time-expiring cache. Staleness within
// the TTL is acceptable here; checkout never reads availability through
// this layer.
type Cached struct {
	inner Reader
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCached(inner Reader, rdb *redis.Client, ttl time.Duration) *Cached {
	return &Cached{inner: inner, rdb: rdb, ttl: ttl}
}

func productKey(id string) string {
	return fmt.Sprintf("catalog:product:%s", id)
}

func listKey(limit, offset int) string {
	return fmt.Sprintf("catalog:products:limit:%d:offset:%d", limit, offset)
}

func (c *Cached) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	key := productKey(id)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		product := &domain.Product{}
		if jsonErr := json.Unmarshal([]byte(raw), product); jsonErr == nil {
			return product, nil
		}
	}

	product, err := c.inner.GetProduct(ctx, id)
	if err != nil || product == nil {
		return product, err
	}

	if data, err := json.Marshal(product); err == nil {
		// Cache failures are not read failures.
		_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
	}

	return product, nil
}

func (c *Cached) ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	key := listKey(limit, offset)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var products []domain.Product
		if jsonErr := json.Unmarshal([]byte(raw), &products); jsonErr == nil {
			return products, nil
		}
	}

	products, err := c.inner.ListProducts(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(products); err == nil {
		_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
	}

	return products, nil
}

// Invalidate drops the detail entry for a product and every cached listing
// page. Listing keys are found by scan, not KEYS, to stay bounded.
func (c *Cached) Invalidate(ctx context.Context, productID string) error {
	if err := c.rdb.Del(ctx, productKey(productID)).Err(); err != nil {
		return err
	}

	iter := c.rdb.Scan(ctx, 0, "catalog:products:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
