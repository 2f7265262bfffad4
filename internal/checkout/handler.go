package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/checkout-flow/internal/domain"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "simulated"
	}

	order, err := h.service.Checkout(r.Context(), sessionID, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	orderID := r.PathValue("id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.CancelOrder(r.Context(), sessionID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrAccessDenied):
			h.writeError(w, http.StatusForbidden, "access denied")
		case errors.Is(err, domain.ErrOrderNotCancelable):
			h.writeError(w, http.StatusConflict, "order can no longer be cancelled")
		default:
			h.logger.Error("failed to cancel order", "error", err, "order_id", orderID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// writeCheckoutError maps the checkout error taxonomy onto HTTP: validation
// and stock refusals carry enough detail for the UI to adjust the cart, a
// declined payment still hands back the cancelled order's ID.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var stockErr *domain.InsufficientStockError
	var payErr *domain.PaymentDeclinedError

	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		h.writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, domain.ErrMissingAddress):
		h.writeError(w, http.StatusBadRequest, "shipping address is required")
	case errors.Is(err, domain.ErrProductNotFound):
		h.writeError(w, http.StatusBadRequest, "cart references an unknown product")
	case errors.As(err, &stockErr):
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &payErr):
		h.writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":    "payment failed",
			"order_id": payErr.OrderID,
			"reason":   payErr.Reason,
		})
	default:
		h.logger.Error("checkout failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
