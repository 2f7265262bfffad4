package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
	"github.com/joao-fontenele/checkout-flow/internal/payment"
	"github.com/joao-fontenele/checkout-flow/internal/reservation"
)

// memBackend fakes the durable side (stock ledger + order store) with the
// same conditional semantics as the SQL repository.
type memBackend struct {
	mu     sync.Mutex
	levels map[string]*domain.StockLevel
	// reservation rows keyed order -> product -> qty, mirroring
	// stock_reservations with status RESERVED.
	reservations map[string]map[string]int
	orders       map[string]*domain.Order
	payments     map[string]*domain.Payment

	failCreate  error
	failConfirm error
}

func newMemBackend(levels map[string]*domain.StockLevel) *memBackend {
	return &memBackend{
		levels:       levels,
		reservations: map[string]map[string]int{},
		orders:       map[string]*domain.Order{},
		payments:     map[string]*domain.Payment{},
	}
}

func (b *memBackend) Snapshot(_ context.Context, productIDs []string) (map[string]domain.StockLevel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := map[string]domain.StockLevel{}
	for _, id := range productIDs {
		if level, ok := b.levels[id]; ok {
			out[id] = *level
		}
	}
	return out, nil
}

func (b *memBackend) CreatePending(_ context.Context, order *domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failCreate != nil {
		return b.failCreate
	}

	// All-or-nothing like the SQL transaction.
	for _, item := range order.Items {
		level, ok := b.levels[item.ProductID]
		if !ok {
			return domain.ErrProductNotFound
		}
		if level.Reserved+item.Quantity > level.OnHand {
			return &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: level.Available(),
			}
		}
	}
	for _, item := range order.Items {
		b.levels[item.ProductID].Reserved += item.Quantity
		if b.reservations[order.ID] == nil {
			b.reservations[order.ID] = map[string]int{}
		}
		b.reservations[order.ID][item.ProductID] = item.Quantity
	}

	stored := *order
	stored.Status = domain.OrderStatusPending
	stored.PaymentStatus = domain.PaymentStatusPending
	b.orders[order.ID] = &stored
	return nil
}

func (b *memBackend) Confirm(_ context.Context, orderID string, pay domain.Payment) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failConfirm != nil {
		return b.failConfirm
	}

	order, ok := b.orders[orderID]
	if !ok || order.Status != domain.OrderStatusPending {
		return errors.New("order is not pending")
	}
	for productID, qty := range b.reservations[orderID] {
		b.levels[productID].OnHand -= qty
		b.levels[productID].Reserved -= qty
	}
	delete(b.reservations, orderID)
	order.Status = domain.OrderStatusConfirmed
	order.PaymentStatus = domain.PaymentStatusSucceeded
	stored := pay
	b.payments[orderID] = &stored
	order.Payment = &stored
	return nil
}

func (b *memBackend) CancelPending(_ context.Context, orderID string, pay *domain.Payment) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[orderID]
	if !ok || order.Status != domain.OrderStatusPending {
		return nil
	}
	for productID, qty := range b.reservations[orderID] {
		b.levels[productID].Reserved -= qty
		if b.levels[productID].Reserved < 0 {
			b.levels[productID].Reserved = 0
		}
	}
	delete(b.reservations, orderID)
	order.Status = domain.OrderStatusCancelled
	order.PaymentStatus = domain.PaymentStatusFailed
	if pay != nil {
		stored := *pay
		b.payments[orderID] = &stored
		order.Payment = &stored
	}
	return nil
}

func (b *memBackend) CancelConfirmed(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[orderID]
	if !ok || order.Status != domain.OrderStatusConfirmed {
		return domain.ErrOrderNotCancelable
	}
	for _, item := range order.Items {
		b.levels[item.ProductID].OnHand += item.Quantity
	}
	order.Status = domain.OrderStatusCancelled
	order.PaymentStatus = domain.PaymentStatusRefunded
	if p := b.payments[orderID]; p != nil {
		p.Status = domain.PaymentStatusRefunded
	}
	return nil
}

func (b *memBackend) ExpiredPending(_ context.Context, olderThan time.Time) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var stale []domain.Order
	for _, order := range b.orders {
		if order.Status == domain.OrderStatusPending && order.CreatedAt.Before(olderThan) {
			stale = append(stale, *order)
		}
	}
	return stale, nil
}

func (b *memBackend) GetByID(_ context.Context, id string) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (b *memBackend) level(productID string) domain.StockLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.levels[productID]
}

func (b *memBackend) checkInvariant(t *testing.T) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, level := range b.levels {
		if level.Reserved < 0 || level.OnHand < 0 || level.Reserved > level.OnHand {
			t.Errorf("ledger invariant violated for %s: on_hand=%d reserved=%d", id, level.OnHand, level.Reserved)
		}
	}
}

// memCache fakes the Redis arbitration layer.
type memCache struct {
	mu    sync.Mutex
	avail map[string]int
	holds map[string]map[string]int

	failReserveFor string // product that errors instead of refusing
}

func newMemCache() *memCache {
	return &memCache{avail: map[string]int{}, holds: map[string]map[string]int{}}
}

func (c *memCache) Reserve(_ context.Context, productID string, qty int, orderID string) (reservation.ReserveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failReserveFor == productID {
		return reservation.ReserveResult{}, errors.New("cache unavailable")
	}
	avail, ok := c.avail[productID]
	if !ok {
		return reservation.ReserveResult{}, reservation.ErrNotCached
	}
	if avail < qty {
		return reservation.ReserveResult{OK: false, Available: avail}, nil
	}
	c.avail[productID] = avail - qty
	if c.holds[orderID] == nil {
		c.holds[orderID] = map[string]int{}
	}
	c.holds[orderID][productID] = qty
	return reservation.ReserveResult{OK: true, Available: avail - qty}, nil
}

func (c *memCache) Release(_ context.Context, productID string, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	qty, ok := c.holds[orderID][productID]
	if !ok {
		return nil
	}
	delete(c.holds[orderID], productID)
	if _, cached := c.avail[productID]; cached {
		c.avail[productID] += qty
	}
	return nil
}

func (c *memCache) Commit(_ context.Context, productID string, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.holds[orderID], productID)
	return nil
}

func (c *memCache) Sync(_ context.Context, productID string, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.avail[productID] = available
	return nil
}

func (c *memCache) Seed(_ context.Context, productID string, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.avail[productID]; !ok {
		c.avail[productID] = available
	}
	return nil
}

func (c *memCache) availability(productID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.avail[productID]
}

type memCarts struct {
	mu    sync.Mutex
	carts map[string]map[string]domain.CartEntry
}

func newMemCarts() *memCarts {
	return &memCarts{carts: map[string]map[string]domain.CartEntry{}}
}

func (c *memCarts) set(sessionID string, entries map[string]domain.CartEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[sessionID] = entries
}

func (c *memCarts) Get(_ context.Context, sessionID string) (map[string]domain.CartEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := map[string]domain.CartEntry{}
	for id, entry := range c.carts[sessionID] {
		out[id] = entry
	}
	return out, nil
}

func (c *memCarts) Clear(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, sessionID)
	return nil
}

func (c *memCarts) has(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.carts[sessionID]) > 0
}

type fakeGateway struct {
	mu      sync.Mutex
	succeed bool
	err     error
	calls   int
}

func (g *fakeGateway) Charge(_ context.Context, _ string, _ int64, _ string) (payment.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return payment.Result{}, g.err
	}
	if !g.succeed {
		return payment.Result{Success: false, Reason: "card declined"}, nil
	}
	return payment.Result{Success: true, TransactionID: "txn_test"}, nil
}

type fixture struct {
	service *Service
	backend *memBackend
	cache   *memCache
	carts   *memCarts
	gateway *fakeGateway
}

func newFixture(t *testing.T, levels map[string]*domain.StockLevel) *fixture {
	t.Helper()

	backend := newMemBackend(levels)
	cache := newMemCache()
	carts := newMemCarts()
	gateway := &fakeGateway{succeed: true}

	service, err := NewService(
		carts, cache, backend, backend, backend, gateway, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		time.Second, 10*time.Minute,
	)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	return &fixture{service: service, backend: backend, cache: cache, carts: carts, gateway: gateway}
}

func TestCheckoutSucceeds(t *testing.T) {
	// Cart of 2 units at $10.00 against 5 on hand: confirmed order worth
	// $20.00, stock drops to 3, nothing stays reserved.
	ctx := context.Background()
	f := newFixture(t, map[string]*domain.StockLevel{
		"productX": {ProductID: "productX", OnHand: 5},
	})
	f.carts.set("sess-1", map[string]domain.CartEntry{
		"productX": {ProductID: "productX", Quantity: 2, PriceCents: 1000},
	})

	order, err := f.service.Checkout(ctx, "sess-1", "1 Main St", "card")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if order.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected confirmed, got %s", order.Status)
	}
	if order.TotalCents != 2000 {
		t.Errorf("expected total 2000, got %d", order.TotalCents)
	}
	if order.PaymentStatus != domain.PaymentStatusSucceeded {
		t.Errorf("expected payment succeeded, got %s", order.PaymentStatus)
	}

	level := f.backend.level("productX")
	if level.OnHand != 3 || level.Reserved != 0 {
		t.Errorf("expected on_hand=3 reserved=0, got %+v", level)
	}
	if f.carts.has("sess-1") {
		t.Error("expected cart to be cleared on success")
	}
	if f.gateway.calls != 1 {
		t.Errorf("expected exactly 1 gateway call, got %d", f.gateway.calls)
	}
	f.backend.checkInvariant(t)
}

func TestCheckoutValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture(t, map[string]*domain.StockLevel{})

		_, err := f.service.Checkout(ctx, "sess-1", "1 Main St", "card")
		if !errors.Is(err, domain.ErrEmptyCart) {
			t.Fatalf("expected ErrEmptyCart, got %v", err)
		}
		if len(f.backend.orders) != 0 {
			t.Error("no order may be created for an empty cart")
		}
	})

	t.Run("missing shipping address", func(t *testing.T) {
		f := newFixture(t, map[string]*domain.StockLevel{
			"productX": {ProductID: "productX", OnHand: 5},
		})
		f.carts.set("sess-1", map[string]domain.CartEntry{
			"productX": {ProductID: "productX", Quantity: 1, PriceCents: 1000},
		})

		_, err := f.service.Checkout(ctx, "sess-1", "", "card")
		if !errors.Is(err, domain.ErrMissingAddress) {
			t.Fatalf("expected ErrMissingAddress, got %v", err)
		}
		if f.gateway.calls != 0 {
			t.Error("validation failures must not reach the gateway")
		}
	})
}

func TestCheckoutInsufficientStock(t *testing.T) {
	// Requesting 3 with only 1 on hand: refused with the actual
	// availability, ledger untouched, no order created.
	ctx := context.Background()
	f := newFixture(t, map[string]*domain.StockLevel{
		"productY": {ProductID: "productY", OnHand: 1},
	})
	f.carts.set("sess-1", map[string]domain.CartEntry{
		"productY": {ProductID: "productY", Quantity: 3, PriceCents: 500},
	})

	_, err := f.service.Checkout(ctx, "sess-1", "1 Main St", "card")

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.ProductID != "productY" || stockErr.Available != 1 {
		t.Errorf("unexpected error detail: %+v", stockErr)
	}

	level := f.backend.level("productY")
	if level.OnHand != 1 || level.Reserved != 0 {
		t.Errorf("ledger must be untouched, got %+v", level)
	}
	if len(f.backend.orders) != 0 {
		t.Error("no order may be created on a stock refusal")
	}
	if f.gateway.calls != 0 {
		t.Error("gateway must not be called on a stock refusal")
	}
}

func TestCheckoutCompensatesPartialReservation(t *testing.T) {
	// A and B reserve fine, C loses the race: A and B must come back to
	// their pre-call availability.
	ctx := context.Background()
	f := newFixture(t, map[string]*domain.StockLevel{
		"productA": {ProductID: "productA", OnHand: 5},
		"productB": {ProductID: "productB", OnHand: 5},
		"productC": {ProductID: "productC", OnHand: 5},
	})
	f.carts.set("sess-1", map[string]domain.CartEntry{
		"productA": {ProductID: "productA", Quantity: 1, PriceCents: 100},
		"productB": {ProductID: "productB", Quantity: 1, PriceCents: 100},
		"productC": {ProductID: "productC", Quantity: 1, PriceCents: 100},
	})

	// The advisory snapshot sees 5 available for C, but the cache knows
	// a competing checkout already drained it.
	_ = f.cache.Sync(ctx, "productA", 5)
	_ = f.cache.Sync(ctx, "productB", 5)
	_ = f.cache.Sync(ctx, "productC", 0)

	_, err := f.service.Checkout(ctx, "sess-1", "1 Main St", "card")

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.ProductID != "productC" {
		t.Errorf("expected refusal on productC, got %s", stockErr.ProductID)
	}

	if got := f.cache.availability("productA"); got != 5 {
		t.Errorf("productA reservation leaked: available %d, want 5", got)
	}
	if got := f.cache.availability("productB"); got != 5 {
		t.Errorf("productB reservation leaked: available %d, want 5", got)
	}
	f.backend.checkInvariant(t)
}

func TestCheckoutReleasesOnCacheError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*domain.StockLevel{
		"productA": {ProductID: "productA", OnHand: 5},
		"productB": {ProductID: "productB", OnHand: 5},
	})
	f.carts.set("sess-1", map[string]domain.CartEntry{
		"productA": {ProductID: "productA", Quantity: 2, PriceCents: 100},
		"productB": {ProductID: "productB", Quantity: 2, PriceCents: 100},
	})
	_ = f.cache.Sync(ctx, "productA", 5)
	f.cache.failReserveFor = "productB"

	_, err := f.service.Checkout(ctx, "sess-1", "1 Main St", "card")
	if err == nil {
		t.Fatal("expected an error")
	}

	if got := f.cache.availability("productA"); got != 5 {
		t.Errorf("productA reservation leaked after infrastructure error: available %d", got)
	}
}

func TestCheckoutPaymentFailure(t *testing.T) {
	// A declined payment leaves a cancelled order for audit, releases the
	// reservation, keeps on_hand intact and keeps the cart for a retry.
	ctx := context.Background()
	f := newFixture(t, map[string]*domain.StockLevel{
		"productX": {ProductID: "productX", OnHand: 5},
	})
	f.carts.set("sess-1", map[string]domain.CartEntry{
		"productX": {ProductID: "productX", Quantity: 2, PriceCents: 1000},
	})
	f.gateway.succeed = false

	_, err := f.service.Checkout(ctx, "sess-1", "1 Main St", "card")

	var payErr *domain.PaymentDeclinedError
	if !errors.As(err, &payErr) {
		t.Fatalf("expected PaymentDeclinedError, got %v", err)
	}
	if payErr.OrderID == "" {
		t.Fatal("payment error must carry the order id")
	}

	order, _ := f.backend.GetByID(ctx, payErr.OrderID)
	if order == nil {
		t.Fatal("cancelled order must be kept for audit")
	}
	if order.Status != domain.OrderStatusCancelled || order.PaymentStatus != domain.PaymentStatusFailed {
		t.Errorf("expected cancelled/failed, got %s/%s", order.Status, order.PaymentStatus)
	}

	level := f.backend.level("productX")
	if level.OnHand != 5 || level.Reserved != 0 {
		t.Errorf("expected on_hand=5 reserved=0 after compensation, got %+v", level)
	}
	if !f.carts.has("sess-1") {
		t.Error("cart must be kept on payment failure so the customer can retry")
	}
	f.backend.checkInvariant(t)
}

func TestCheckoutGatewayTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*domain.StockLevel{
		"productX": {ProductID: "productX", OnHand: 5},
	})
	f.carts.set("sess-1", map[string]domain.CartEntry{
		"productX": {ProductID: "productX", Quantity: 1, PriceCents: 1000},
	})
	f.gateway.err = context.DeadlineExceeded

	_, err := f.service.Checkout(ctx, "sess-1", "1 Main St", "card")

	var payErr *domain.PaymentDeclinedError
	if !errors.As(err, &payErr) {
		t.Fatalf("timeout must be handled as a decline, got %v", err)
	}

	level := f.backend.level("productX")
	if level.Reserved != 0 {
		t.Errorf("expected no live reservation after timeout, got reserved=%d", level.Reserved)
	}
	f.backend.checkInvariant(t)
}

func TestCheckoutConcurrentScarcity(t *testing.T) {
	// onHand=5, 10 concurrent single-unit checkouts: exactly 5 confirm
	// and 5 are refused with InsufficientStock.
	ctx := context.Background()
	f := newFixture(t, map[string]*domain.StockLevel{
		"productX": {ProductID: "productX", OnHand: 5},
	})
	_ = f.cache.Sync(ctx, "productX", 5)

	sessions := make([]string, 10)
	for i := range sessions {
		sessions[i] = "sess-" + string(rune('0'+i))
		f.carts.set(sessions[i], map[string]domain.CartEntry{
			"productX": {ProductID: "productX", Quantity: 1, PriceCents: 1000},
		})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	confirmed, refused := 0, 0

	for _, session := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Checkout(ctx, session, "1 Main St", "card")

			mu.Lock()
			defer mu.Unlock()
			var stockErr *domain.InsufficientStockError
			switch {
			case err == nil:
				confirmed++
			case errors.As(err, &stockErr):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if confirmed != 5 || refused != 5 {
		t.Errorf("expected 5 confirmed / 5 refused, got %d / %d", confirmed, refused)
	}

	level := f.backend.level("productX")
	if level.OnHand != 0 || level.Reserved != 0 {
		t.Errorf("expected stock fully committed, got %+v", level)
	}
	f.backend.checkInvariant(t)
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *domain.Order) {
		f := newFixture(t, map[string]*domain.StockLevel{
			"productX": {ProductID: "productX", OnHand: 5},
		})
		f.carts.set("sess-1", map[string]domain.CartEntry{
			"productX": {ProductID: "productX", Quantity: 2, PriceCents: 1000},
		})
		order, err := f.service.Checkout(ctx, "sess-1", "1 Main St", "card")
		if err != nil {
			t.Fatalf("checkout failed: %v", err)
		}
		return f, order
	}

	t.Run("confirmed order restocks and refunds", func(t *testing.T) {
		f, order := setup(t)

		cancelled, err := f.service.CancelOrder(ctx, "sess-1", order.ID)
		if err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		if cancelled.Status != domain.OrderStatusCancelled {
			t.Errorf("expected cancelled, got %s", cancelled.Status)
		}
		if cancelled.PaymentStatus != domain.PaymentStatusRefunded {
			t.Errorf("expected refunded, got %s", cancelled.PaymentStatus)
		}

		level := f.backend.level("productX")
		if level.OnHand != 5 {
			t.Errorf("expected stock restored to 5, got %d", level.OnHand)
		}
		f.backend.checkInvariant(t)
	})

	t.Run("wrong session is denied", func(t *testing.T) {
		f, order := setup(t)

		_, err := f.service.CancelOrder(ctx, "sess-other", order.ID)
		if !errors.Is(err, domain.ErrAccessDenied) {
			t.Fatalf("expected ErrAccessDenied, got %v", err)
		}
	})

	t.Run("already cancelled is refused", func(t *testing.T) {
		f, order := setup(t)
		if _, err := f.service.CancelOrder(ctx, "sess-1", order.ID); err != nil {
			t.Fatalf("first cancel failed: %v", err)
		}

		_, err := f.service.CancelOrder(ctx, "sess-1", order.ID)
		if !errors.Is(err, domain.ErrOrderNotCancelable) {
			t.Fatalf("expected ErrOrderNotCancelable, got %v", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		f, _ := setup(t)

		_, err := f.service.CancelOrder(ctx, "sess-1", "no-such-order")
		if !errors.Is(err, domain.ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*domain.StockLevel{
		"productX": {ProductID: "productX", OnHand: 5},
	})

	// A pending order left behind by a crashed checkout, with its ledger
	// reservation still live.
	stale := &domain.Order{
		ID:        "stale-1",
		SessionID: "sess-1",
		Items: []domain.OrderItem{
			{ProductID: "productX", Quantity: 2, PriceCentsAtBuy: 1000},
		},
		TotalCents:      2000,
		ShippingAddress: "1 Main St",
		PaymentMethod:   "card",
		CreatedAt:       time.Now().UTC().Add(-time.Hour),
	}
	if err := f.backend.CreatePending(ctx, stale); err != nil {
		t.Fatalf("failed to seed stale order: %v", err)
	}

	swept, err := f.service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept order, got %d", swept)
	}

	order, _ := f.backend.GetByID(ctx, "stale-1")
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("expected stale order cancelled, got %s", order.Status)
	}
	level := f.backend.level("productX")
	if level.Reserved != 0 {
		t.Errorf("expected reservation released, got reserved=%d", level.Reserved)
	}

	// Fresh pending orders stay untouched.
	fresh := &domain.Order{
		ID:        "fresh-1",
		SessionID: "sess-2",
		Items: []domain.OrderItem{
			{ProductID: "productX", Quantity: 1, PriceCentsAtBuy: 1000},
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := f.backend.CreatePending(ctx, fresh); err != nil {
		t.Fatalf("failed to seed fresh order: %v", err)
	}
	swept, err = f.service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("expected 0 swept orders, got %d", swept)
	}
}
