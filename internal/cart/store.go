package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
)

// addScript merges an add into any existing entry in one script
// execution, so two concurrent adds for the same product both count. The
// first add's price snapshot and timestamp win.
var addScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if raw then
  local existing = cjson.decode(raw)
  local incoming = cjson.decode(ARGV[2])
  existing['quantity'] = existing['quantity'] + incoming['quantity']
  redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(existing))
else
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
end
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
return 1
`)

// Store keeps one Redis hash per session, one field per product. All
// entries share the container's TTL, refreshed on every write.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func (s *Store) Get(ctx context.Context, sessionID string) (map[string]domain.CartEntry, error) {
	fields, err := s.rdb.HGetAll(ctx, cartKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get cart for session %s: %w", sessionID, err)
	}

	entries := make(map[string]domain.CartEntry, len(fields))
	for productID, raw := range fields {
		var entry domain.CartEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// Skip entries that no longer parse rather than failing the
			// whole cart.
			continue
		}
		entries[productID] = entry
	}
	return entries, nil
}

// Add upserts with increment: adding a product already in the cart
// accumulates quantity instead of overwriting it. The price snapshot from
// the first add is kept.
func (s *Store) Add(ctx context.Context, sessionID string, productID string, qty int, priceCents int64, title string) error {
	if qty < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d", qty)
	}

	entry := domain.CartEntry{
		ProductID:  productID,
		Quantity:   qty,
		PriceCents: priceCents,
		Title:      title,
		AddedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	err = addScript.Run(ctx, s.rdb,
		[]string{cartKey(sessionID)},
		productID, data, int(s.ttl.Seconds()),
	).Err()
	if err != nil {
		return fmt.Errorf("add cart entry: %w", err)
	}
	return nil
}

// Update sets an absolute quantity; zero removes the entry.
func (s *Store) Update(ctx context.Context, sessionID string, productID string, qty int) error {
	key := cartKey(sessionID)

	if qty <= 0 {
		return s.Remove(ctx, sessionID, productID)
	}

	raw, err := s.rdb.HGet(ctx, key, productID).Result()
	if err == redis.Nil {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("read cart entry: %w", err)
	}

	var entry domain.CartEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return fmt.Errorf("decode cart entry: %w", err)
	}
	entry.Quantity = qty

	return s.write(ctx, key, productID, entry)
}

func (s *Store) Remove(ctx context.Context, sessionID string, productID string) error {
	if err := s.rdb.HDel(ctx, cartKey(sessionID), productID).Err(); err != nil {
		return fmt.Errorf("remove cart entry: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear cart for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, key, productID string, entry domain.CartEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, productID, data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write cart entry: %w", err)
	}
	return nil
}
