package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
)

// ProductReader looks up the product being added so the cart entry carries
// a price snapshot from add time.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// StockChecker reads ledger availability for the advisory add-time check.
// The check is non-binding; checkout holds the authoritative gate.
type StockChecker interface {
	GetStock(ctx context.Context, productID string) (*domain.StockLevel, error)
}

type Handler struct {
	store    *Store
	products ProductReader
	stock    StockChecker
	logger   *slog.Logger
}

func NewHandler(store *Store, products ProductReader, stock StockChecker, logger *slog.Logger) *Handler {
	return &Handler{store: store, products: products, stock: stock, logger: logger}
}

type cartView struct {
	Items         []domain.CartEntry `json:"items"`
	SubtotalCents int64              `json:"subtotal_cents"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	entries, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to get cart", "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, viewOf(entries))
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product_id")
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	product, err := h.products.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		h.logger.Error("failed to look up product", "error", err, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	if available, ok := h.checkAvailability(r, sessionID, product.ID, req.Quantity); !ok {
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": product.ID,
			"requested":  req.Quantity,
			"available":  available,
		})
		return
	}

	if err := h.store.Add(r.Context(), sessionID, product.ID, req.Quantity, product.PriceCents, product.Title); err != nil {
		h.logger.Error("failed to add cart item", "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "session_id", sessionID, "product_id", product.ID, "quantity", req.Quantity)
	h.respondWithCart(w, r, sessionID)
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	if err := h.store.Update(r.Context(), sessionID, productID, req.Quantity); err != nil {
		if err == domain.ErrProductNotFound {
			h.writeError(w, http.StatusNotFound, "product not in cart")
			return
		}
		h.logger.Error("failed to update cart item", "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithCart(w, r, sessionID)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	if err := h.store.Remove(r.Context(), sessionID, productID); err != nil {
		h.logger.Error("failed to remove cart item", "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithCart(w, r, sessionID)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := h.store.Clear(r.Context(), sessionID); err != nil {
		h.logger.Error("failed to clear cart", "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// checkAvailability compares requested quantity, plus whatever the cart
// already holds, against ledger availability. Read failures pass the add
// through; a race here is caught again at checkout.
func (h *Handler) checkAvailability(r *http.Request, sessionID, productID string, qty int) (int, bool) {
	if h.stock == nil {
		return 0, true
	}

	level, err := h.stock.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.Error("advisory stock check failed", "error", err, "product_id", productID)
		return 0, true
	}
	if level == nil {
		return 0, true
	}

	inCart := 0
	if entries, err := h.store.Get(r.Context(), sessionID); err == nil {
		inCart = entries[productID].Quantity
	}

	if level.Available() < inCart+qty {
		return level.Available(), false
	}
	return level.Available(), true
}

func (h *Handler) respondWithCart(w http.ResponseWriter, r *http.Request, sessionID string) {
	entries, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to re-read cart", "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(entries))
}

func viewOf(entries map[string]domain.CartEntry) cartView {
	view := cartView{Items: []domain.CartEntry{}}
	for _, entry := range entries {
		view.Items = append(view.Items, entry)
		view.SubtotalCents += int64(entry.Quantity) * entry.PriceCents
	}
	return view
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing X-Session-ID header")
		return "", false
	}
	return sessionID, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
