package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
	"github.com/joao-fontenele/checkout-flow/internal/payment"
	"github.com/joao-fontenele/checkout-flow/internal/reservation"
)

// Checkout state machine. The failure edge from any state past created runs
// through compensation before the call returns.
type state string

const (
	stateCreated       state = "created"
	stateStockVerified state = "stock_verified"
	stateReserved      state = "reserved"
	statePaid          state = "paid"
	stateCommitted     state = "committed"
	stateCompensating  state = "compensating"
	stateCancelled     state = "cancelled"
)

type CartStore interface {
	Get(ctx context.Context, sessionID string) (map[string]domain.CartEntry, error)
	Clear(ctx context.Context, sessionID string) error
}

type ReservationCache interface {
	Reserve(ctx context.Context, productID string, qty int, orderID string) (reservation.ReserveResult, error)
	Release(ctx context.Context, productID string, orderID string) error
	Commit(ctx context.Context, productID string, orderID string) error
	Seed(ctx context.Context, productID string, available int) error
}

type StockReader interface {
	Snapshot(ctx context.Context, productIDs []string) (map[string]domain.StockLevel, error)
}

type OrderStore interface {
	CreatePending(ctx context.Context, order *domain.Order) error
	Confirm(ctx context.Context, orderID string, pay domain.Payment) error
	CancelPending(ctx context.Context, orderID string, pay *domain.Payment) error
	CancelConfirmed(ctx context.Context, orderID string) error
	ExpiredPending(ctx context.Context, olderThan time.Time) ([]domain.Order, error)
}

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type Service struct {
	carts          CartStore
	cache          ReservationCache
	stock          StockReader
	store          OrderStore
	reader         OrderReader
	gateway        payment.Gateway
	producer       Publisher
	logger         *slog.Logger
	paymentTimeout time.Duration
	holdTTL        time.Duration

	confirmed metric.Int64Counter
	cancelled metric.Int64Counter
	conflicts metric.Int64Counter
}

func NewService(
	carts CartStore,
	cache ReservationCache,
	stock StockReader,
	store OrderStore,
	reader OrderReader,
	gateway payment.Gateway,
	producer Publisher,
	logger *slog.Logger,
	paymentTimeout time.Duration,
	holdTTL time.Duration,
) (*Service, error) {
	meter := otel.Meter("checkout")

	confirmed, err := meter.Int64Counter("checkout.orders.confirmed")
	if err != nil {
		return nil, err
	}
	cancelled, err := meter.Int64Counter("checkout.orders.cancelled")
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("checkout.reservation.conflicts")
	if err != nil {
		return nil, err
	}

	return &Service{
		carts:          carts,
		cache:          cache,
		stock:          stock,
		store:          store,
		reader:         reader,
		gateway:        gateway,
		producer:       producer,
		logger:         logger,
		paymentTimeout: paymentTimeout,
		holdTTL:        holdTTL,
		confirmed:      confirmed,
		cancelled:      cancelled,
		conflicts:      conflicts,
	}, nil
}

// Checkout turns the session's cart into a committed order, or into nothing
// at all: every failure path releases whatever was reserved before it
// returns.
func (s *Service) Checkout(ctx context.Context, sessionID, shippingAddress, paymentMethod string) (*domain.Order, error) {
	if shippingAddress == "" {
		return nil, domain.ErrMissingAddress
	}

	entries, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrEmptyCart
	}

	// Reserve in a stable order so concurrent checkouts contend on
	// products in the same sequence.
	productIDs := make([]string, 0, len(entries))
	for id := range entries {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	// Advisory pre-check straight from the ledger. The cache reservation
	// below is the authoritative gate; this exists to fail fast with a
	// precise answer before any reservation work.
	snapshot, err := s.stock.Snapshot(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range productIDs {
		level, ok := snapshot[id]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		if level.Available() < entries[id].Quantity {
			return nil, &domain.InsufficientStockError{
				ProductID: id,
				Requested: entries[id].Quantity,
				Available: level.Available(),
			}
		}
	}

	// The order ID exists before any side effect so reservations and
	// compensations stay correlated even across a crash.
	orderID := uuid.NewString()
	logger := s.logger.With("order_id", orderID, "session_id", sessionID)
	logger.Info("checkout started", "state", stateStockVerified, "items", len(entries))

	var reserved []string
	defer func() {
		if r := recover(); r != nil {
			s.releaseHolds(context.WithoutCancel(ctx), orderID, reserved)
			panic(r)
		}
	}()

	for _, id := range productIDs {
		res, err := s.reserveOne(ctx, id, entries[id].Quantity, orderID, snapshot[id])
		if err != nil {
			s.releaseHolds(context.WithoutCancel(ctx), orderID, reserved)
			return nil, err
		}
		if !res.OK {
			s.conflicts.Add(ctx, 1)
			s.releaseHolds(context.WithoutCancel(ctx), orderID, reserved)
			return nil, &domain.InsufficientStockError{
				ProductID: id,
				Requested: entries[id].Quantity,
				Available: res.Available,
			}
		}
		reserved = append(reserved, id)
	}
	logger.Info("stock reserved", "state", stateReserved)

	order := &domain.Order{
		ID:              orderID,
		SessionID:       sessionID,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingAddress: shippingAddress,
		PaymentMethod:   paymentMethod,
		CreatedAt:       time.Now().UTC(),
	}
	for _, id := range productIDs {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:       id,
			Quantity:        entries[id].Quantity,
			PriceCentsAtBuy: entries[id].PriceCents,
		})
	}
	order.TotalCents = domain.ItemsTotalCents(order.Items)

	if err := s.store.CreatePending(ctx, order); err != nil {
		s.releaseHolds(context.WithoutCancel(ctx), orderID, reserved)
		return nil, err
	}

	// The gateway call is the only step with third-party latency; it gets
	// a hard deadline and is made exactly once. A timeout is a decline.
	payCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	charged, payErr := s.gateway.Charge(payCtx, orderID, order.TotalCents, paymentMethod)
	cancel()

	if payErr != nil || !charged.Success {
		reason := charged.Reason
		if payErr != nil {
			reason = payErr.Error()
		}
		logger.Info("payment failed", "state", stateCompensating, "reason", reason)

		compCtx := context.WithoutCancel(ctx)
		s.releaseHolds(compCtx, orderID, reserved)
		failedPay := &domain.Payment{
			OrderID:     orderID,
			AmountCents: order.TotalCents,
			Status:      domain.PaymentStatusFailed,
			ProcessedAt: time.Now().UTC(),
		}
		if err := s.store.CancelPending(compCtx, orderID, failedPay); err != nil {
			logger.Error("failed to cancel order after payment failure", "error", err)
		}
		s.cancelled.Add(compCtx, 1)
		s.publishCancelled(compCtx, order, "payment failed: "+reason)

		// The cart is intentionally kept so the customer can retry.
		return nil, &domain.PaymentDeclinedError{OrderID: orderID, Reason: reason}
	}
	logger.Info("payment authorized", "state", statePaid, "transaction_id", charged.TransactionID)

	pay := domain.Payment{
		OrderID:       orderID,
		AmountCents:   order.TotalCents,
		Status:        domain.PaymentStatusSucceeded,
		TransactionID: charged.TransactionID,
		ProcessedAt:   time.Now().UTC(),
	}
	if err := s.store.Confirm(ctx, orderID, pay); err != nil {
		// Durable commit failed after a successful charge. Release
		// everything; the payment record is surfaced to the caller as a
		// hard error for manual follow-up.
		logger.Error("failed to confirm order", "error", err, "state", stateCompensating)
		compCtx := context.WithoutCancel(ctx)
		s.releaseHolds(compCtx, orderID, reserved)
		if cancelErr := s.store.CancelPending(compCtx, orderID, nil); cancelErr != nil {
			logger.Error("failed to cancel order after confirm failure", "error", cancelErr)
		}
		s.cancelled.Add(compCtx, 1)
		return nil, err
	}

	// Durable state is settled; the remaining steps are best-effort.
	for _, id := range reserved {
		if err := s.cache.Commit(ctx, id, orderID); err != nil {
			logger.Error("failed to drop cache hold", "error", err, "product_id", id)
		}
	}
	if err := s.carts.Clear(ctx, sessionID); err != nil {
		logger.Error("failed to clear cart", "error", err)
	}

	s.confirmed.Add(ctx, 1)
	logger.Info("checkout committed", "state", stateCommitted, "total_cents", order.TotalCents)

	if s.producer != nil {
		event := domain.OrderConfirmedEvent{
			OrderID:    orderID,
			SessionID:  sessionID,
			Items:      order.Items,
			TotalCents: order.TotalCents,
			Timestamp:  time.Now().UTC(),
		}
		if err := s.producer.Publish(ctx, domain.TopicOrderConfirmed, orderID, event); err != nil {
			logger.Error("failed to publish order confirmed event", "error", err)
		}
	}

	confirmedOrder, err := s.reader.GetByID(ctx, orderID)
	if err != nil || confirmedOrder == nil {
		// The order is committed; fall back to what we already know.
		order.Status = domain.OrderStatusConfirmed
		order.PaymentStatus = domain.PaymentStatusSucceeded
		order.Payment = &pay
		return order, nil
	}
	return confirmedOrder, nil
}

// CancelOrder cancels the caller's own order. A pending order releases its
// reservation; a confirmed one puts committed stock back on hand and flips
// the payment to refunded.
func (s *Service) CancelOrder(ctx context.Context, sessionID, orderID string) (*domain.Order, error) {
	order, err := s.reader.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.SessionID != sessionID {
		return nil, domain.ErrAccessDenied
	}
	if !domain.CanTransition(order.Status, domain.OrderStatusCancelled) {
		return nil, domain.ErrOrderNotCancelable
	}

	if order.Status == domain.OrderStatusPending {
		s.releaseHolds(ctx, orderID, productIDsOf(order.Items))
		if err := s.store.CancelPending(ctx, orderID, nil); err != nil {
			return nil, err
		}
	} else {
		if err := s.store.CancelConfirmed(ctx, orderID); err != nil {
			return nil, err
		}
		s.publishRestocked(ctx, order)
	}

	s.cancelled.Add(ctx, 1)
	s.publishCancelled(ctx, order, "cancelled by customer")

	return s.reader.GetByID(ctx, orderID)
}

// SweepExpired compensates orders stuck in pending longer than the hold
// TTL, e.g. after a crash between reserve and payment. Run periodically by
// the worker.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	stale, err := s.store.ExpiredPending(ctx, time.Now().UTC().Add(-s.holdTTL))
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, order := range stale {
		s.releaseHolds(ctx, order.ID, productIDsOf(order.Items))
		if err := s.store.CancelPending(ctx, order.ID, nil); err != nil {
			s.logger.Error("failed to sweep stale order", "error", err, "order_id", order.ID)
			continue
		}
		s.cancelled.Add(ctx, 1)
		s.publishCancelled(ctx, &order, "reservation expired")
		s.logger.Info("swept stale pending order", "order_id", order.ID)
		swept++
	}
	return swept, nil
}

// reserveOne runs the authoritative conditional reservation, repopulating
// the availability key from the ledger snapshot when it has expired. The
// repopulation is set-if-absent: a concurrent checkout may have rebuilt
// the key and reserved against it between our two calls.
func (s *Service) reserveOne(ctx context.Context, productID string, qty int, orderID string, level domain.StockLevel) (reservation.ReserveResult, error) {
	res, err := s.cache.Reserve(ctx, productID, qty, orderID)
	if errors.Is(err, reservation.ErrNotCached) {
		if err := s.cache.Seed(ctx, productID, level.Available()); err != nil {
			return reservation.ReserveResult{}, err
		}
		res, err = s.cache.Reserve(ctx, productID, qty, orderID)
		if err != nil {
			return reservation.ReserveResult{}, err
		}
		return res, nil
	}
	return res, err
}

// releaseHolds is the compensation primitive: it returns every cache hold
// this order took. Safe to call repeatedly; releases are idempotent.
func (s *Service) releaseHolds(ctx context.Context, orderID string, productIDs []string) {
	for _, id := range productIDs {
		if err := s.cache.Release(ctx, id, orderID); err != nil {
			s.logger.Error("failed to release reservation", "error", err, "order_id", orderID, "product_id", id)
		}
	}
}

func (s *Service) publishCancelled(ctx context.Context, order *domain.Order, reason string) {
	if s.producer == nil {
		return
	}
	event := domain.OrderCancelledEvent{
		OrderID:   order.ID,
		SessionID: order.SessionID,
		Items:     order.Items,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, domain.TopicOrderCancelled, order.ID, event); err != nil {
		s.logger.Error("failed to publish order cancelled event", "error", err, "order_id", order.ID)
	}
}

func (s *Service) publishRestocked(ctx context.Context, order *domain.Order) {
	if s.producer == nil {
		return
	}
	event := domain.StockRestockedEvent{
		OrderID:   order.ID,
		Items:     order.Items,
		Timestamp: time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, domain.TopicStockRestocked, order.ID, event); err != nil {
		s.logger.Error("failed to publish stock restocked event", "error", err, "order_id", order.ID)
	}
}

func productIDsOf(items []domain.OrderItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
