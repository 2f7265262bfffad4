package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
)

// StockSource reads authoritative stock levels.
type StockSource interface {
	GetStock(ctx context.Context, productID string) (*domain.StockLevel, error)
}

// AvailabilitySink pushes fresh availability into the reservation cache.
type AvailabilitySink interface {
	Sync(ctx context.Context, productID string, available int) error
}

// CatalogInvalidator drops cached catalog entries for a product.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, productID string) error
}

// StockSyncHandler consumes order lifecycle events and resynchronizes the
// cached availability of every product the order touched against the
// ledger. Commits and restocks both move the ledger, so the cache is
// refreshed after either event. Catalog caches for the same products are
// dropped at the same time.
type StockSyncHandler struct {
	stock   StockSource
	cache   AvailabilitySink
	catalog CatalogInvalidator
	logger  *slog.Logger
}

func NewStockSyncHandler(stock StockSource, cache AvailabilitySink, catalog CatalogInvalidator, logger *slog.Logger) *StockSyncHandler {
	return &StockSyncHandler{stock: stock, cache: cache, catalog: catalog, logger: logger}
}

func (h *StockSyncHandler) HandleConfirmed(ctx context.Context, key string, payload []byte) error {
	var event domain.OrderConfirmedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order confirmed event: %w", err)
	}

	h.logger.Info("processing order confirmed event", "order_id", event.OrderID, "key", key)
	return h.syncItems(ctx, event.OrderID, event.Items)
}

func (h *StockSyncHandler) HandleCancelled(ctx context.Context, key string, payload []byte) error {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order cancelled event: %w", err)
	}

	h.logger.Info("processing order cancelled event", "order_id", event.OrderID, "key", key, "reason", event.Reason)
	return h.syncItems(ctx, event.OrderID, event.Items)
}

func (h *StockSyncHandler) HandleRestocked(ctx context.Context, key string, payload []byte) error {
	var event domain.StockRestockedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal stock restocked event: %w", err)
	}

	h.logger.Info("processing stock restocked event", "order_id", event.OrderID, "key", key)
	return h.syncItems(ctx, event.OrderID, event.Items)
}

func (h *StockSyncHandler) syncItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	for _, item := range items {
		level, err := h.stock.GetStock(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("read stock for product %s: %w", item.ProductID, err)
		}
		if level == nil {
			h.logger.Warn("product has no stock row, skipping sync", "product_id", item.ProductID, "order_id", orderID)
			continue
		}

		if err := h.cache.Sync(ctx, item.ProductID, level.Available()); err != nil {
			return fmt.Errorf("sync availability for product %s: %w", item.ProductID, err)
		}

		if h.catalog != nil {
			if err := h.catalog.Invalidate(ctx, item.ProductID); err != nil {
				// Catalog entries expire on their own; a failed drop is
				// not worth a redelivery.
				h.logger.Error("failed to invalidate catalog cache", "error", err, "product_id", item.ProductID)
			}
		}

		h.logger.Info("availability synced", "product_id", item.ProductID, "available", level.Available())
	}
	return nil
}
