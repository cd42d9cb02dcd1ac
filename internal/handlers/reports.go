package handlers

import (
	"net/http"
	"strings"

	"github.com/northline-logistics/api/internal/platform/httpx"
)

func (h *OrderHandlers) statusSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeServiceUnavailable(ctx, w, "report")
		return
	}
	counts, err := h.reports.StatusSummary(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "Order status summary for today", buildStatusCounts(counts))
}

// driverSummary reports today's breakdown for the calling driver. Unlike the
// global summary it answers with zeros rather than 404 on a quiet day.
func (h *OrderHandlers) driverSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeServiceUnavailable(ctx, w, "report")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	counts, err := h.reports.DriverStatusSummary(ctx, identity.UID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "Driver order status summary for today", buildStatusCounts(counts))
}

func (h *OrderHandlers) driverOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeServiceUnavailable(ctx, w, "report")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status query parameter is required", http.StatusBadRequest))
		return
	}
	views, err := h.reports.DriverOrdersByStatus(ctx, identity.UID, status)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "Driver orders retrieved successfully", buildOrderPayloads(views))
}
