package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/northline-logistics/api/internal/platform/auth"
	"github.com/northline-logistics/api/internal/platform/httpx"
	"github.com/northline-logistics/api/internal/services"
)

// InternalHandlers serves service-to-service routes such as the warehouse
// scanner. Callers are authenticated by the OIDC middleware mounted in front.
type InternalHandlers struct {
	orders services.OrderService
}

// NewInternalHandlers constructs InternalHandlers.
func NewInternalHandlers(orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{orders: orders}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders/token/{orderToken}", h.scanOrder)
	r.Patch("/orders/{orderID}", h.updateOrder)
}

func (h *InternalHandlers) scanOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireService(w, r); !ok {
		return
	}
	token := strings.TrimSpace(chi.URLParam(r, "orderToken"))
	view, err := h.orders.GetOrderByToken(ctx, token)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "Order retrieved successfully", buildOrderPayload(view))
}

func (h *InternalHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireService(w, r)
	if !ok {
		return
	}
	applyOrderUpdate(ctx, w, r, h.orders, "service:"+firstNonEmpty(identity.Email, identity.Subject))
}

func requireService(w http.ResponseWriter, r *http.Request) (*auth.ServiceIdentity, bool) {
	identity, ok := auth.ServiceIdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "service identity required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
