package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotCached means the availability key for a product has expired or was
// never synced. The caller repopulates from the ledger and retries.
var ErrNotCached = errors.New("availability not cached")

// reserveScript is the arbitration point for concurrent checkouts: the
// check and the decrement happen in one script execution, so two callers
// can never both win the last unit. Returns {1, remaining} on success,
// {-1, available} on refusal, {-2, 0} when the key is not cached.
var reserveScript = redis.NewScript(`
local avail = redis.call('GET', KEYS[1])
if not avail then
  return {-2, 0}
end
avail = tonumber(avail)
local qty = tonumber(ARGV[1])
if avail < qty then
  return {-1, avail}
end
redis.call('DECRBY', KEYS[1], qty)
redis.call('HSET', KEYS[2], ARGV[2], qty)
redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
return {1, avail - qty}
`)

// releaseScript keys the release on the hold hash field: once the field is
// gone, releasing again returns nothing back, which makes compensation
// retries idempotent. The availability key is only credited while it still
// exists; otherwise the next sync rebuilds it from the ledger.
var releaseScript = redis.NewScript(`
local qty = redis.call('HGET', KEYS[2], ARGV[1])
if not qty then
  return 0
end
redis.call('HDEL', KEYS[2], ARGV[1])
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('INCRBY', KEYS[1], tonumber(qty))
end
return 1
`)

type Cache struct {
	rdb      *redis.Client
	holdTTL  time.Duration
	availTTL time.Duration
}

func NewCache(rdb *redis.Client, holdTTL, availTTL time.Duration) *Cache {
	return &Cache{rdb: rdb, holdTTL: holdTTL, availTTL: availTTL}
}

type ReserveResult struct {
	OK        bool
	Available int
}

func (c *Cache) Reserve(ctx context.Context, productID string, qty int, orderID string) (ReserveResult, error) {
	res, err := reserveScript.Run(ctx, c.rdb,
		[]string{availKey(productID), holdKey(orderID)},
		qty, productID, int(c.holdTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return ReserveResult{}, fmt.Errorf("reserve %s for order %s: %w", productID, orderID, err)
	}
	if len(res) != 2 {
		return ReserveResult{}, fmt.Errorf("reserve %s: unexpected script result %v", productID, res)
	}

	switch res[0] {
	case 1:
		return ReserveResult{OK: true, Available: int(res[1])}, nil
	case -1:
		return ReserveResult{OK: false, Available: int(res[1])}, nil
	default:
		return ReserveResult{}, ErrNotCached
	}
}

func (c *Cache) Release(ctx context.Context, productID string, orderID string) error {
	err := releaseScript.Run(ctx, c.rdb,
		[]string{availKey(productID), holdKey(orderID)},
		productID,
	).Err()
	if err != nil {
		return fmt.Errorf("release %s for order %s: %w", productID, orderID, err)
	}
	return nil
}

// Commit drops the hold without crediting availability: the units were
// already subtracted at reserve time and have now left on_hand for good.
func (c *Cache) Commit(ctx context.Context, productID string, orderID string) error {
	if err := c.rdb.HDel(ctx, holdKey(orderID), productID).Err(); err != nil {
		return fmt.Errorf("commit hold %s for order %s: %w", productID, orderID, err)
	}
	return nil
}

// Sync overwrites the availability key from ledger state. Only callers
// following an actual ledger movement may use it; anyone else would stomp
// decrements taken since their snapshot.
func (c *Cache) Sync(ctx context.Context, productID string, available int) error {
	return c.rdb.Set(ctx, availKey(productID), strconv.Itoa(available), c.availTTL).Err()
}

// Seed populates the availability key only when it is absent, so a
// concurrent checkout that already reserved against a fresh key keeps its
// decrement.
func (c *Cache) Seed(ctx context.Context, productID string, available int) error {
	return c.rdb.SetNX(ctx, availKey(productID), strconv.Itoa(available), c.availTTL).Err()
}

// Hold reports the quantities currently held for an order, if any.
func (c *Cache) Hold(ctx context.Context, orderID string) (map[string]int, error) {
	fields, err := c.rdb.HGetAll(ctx, holdKey(orderID)).Result()
	if err != nil {
		return nil, err
	}

	hold := make(map[string]int, len(fields))
	for productID, raw := range fields {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		hold[productID] = qty
	}
	return hold, nil
}
