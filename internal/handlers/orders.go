package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/northline-logistics/api/internal/platform/auth"
	"github.com/northline-logistics/api/internal/platform/httpx"
	"github.com/northline-logistics/api/internal/platform/pagination"
	"github.com/northline-logistics/api/internal/services"
)

const (
	defaultOrderPageSize = 10
	maxOrderPageSize     = 100
)

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*l = stringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type productRequest struct {
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity"`
}

type createOrderRequest struct {
	Receiver    string           `json:"receiver"`
	ServiceType stringList       `json:"service_type"`
	Message     string           `json:"message"`
	Products    []productRequest `json:"products"`
	PickupDate  string           `json:"pickup_date"`
	DropDate    string           `json:"drop_date"`
	Shift       string           `json:"shift"`
}

type updateOrderRequest struct {
	OrderStatus    *string `json:"order_status"`
	AssignedDriver *string `json:"assigned_driver"`
	Reason         *string `json:"reason"`
}

// OrderHandlers serves the /orders endpoints for clients, drivers and admins.
type OrderHandlers struct {
	authn    *auth.Authenticator
	policy   *auth.Policy
	orders   services.OrderService
	reports  services.OrderReportService
	limiter  rateLimiter
	createMW []func(http.Handler) http.Handler
	paging   pagination.Options
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderPolicy enforces the role policy on every order route.
func WithOrderPolicy(policy *auth.Policy) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.policy = policy
	}
}

// WithOrderReports enables the summary and driver dashboard routes.
func WithOrderReports(reports services.OrderReportService) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.reports = reports
	}
}

// WithOrderCreateRateLimit caps order creation per caller to limit requests per window.
func WithOrderCreateRateLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.limiter = newKeyedLimiter(limit, window, clock)
	}
}

// WithOrderCreateMiddleware wraps POST /orders, for example with the idempotency middleware.
func WithOrderCreateMiddleware(mw ...func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.createMW = append(h.createMW, mw...)
	}
}

// WithOrderPagination overrides the default and maximum page size.
func WithOrderPagination(defaultLimit, maxLimit int) OrderHandlerOption {
	return func(h *OrderHandlers) {
		if defaultLimit > 0 {
			h.paging.DefaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			h.paging.MaxLimit = maxLimit
		}
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
		paging: pagination.Options{DefaultLimit: defaultOrderPageSize, MaxLimit: maxOrderPageSize},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints. Static segments are registered
// before /{orderID} so chi prefers them.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}

	create := append([]func(http.Handler) http.Handler{
		h.authorize(auth.ResourceOrders, auth.ActionCreate),
		rateLimitMiddleware(h.limiter),
	}, h.createMW...)
	r.With(create...).Post("/", h.createOrder)
	r.With(h.authorize(auth.ResourceOrders, auth.ActionList)).Get("/", h.listOrders)

	r.With(h.authorize(auth.ResourceReports, auth.ActionRead)).Get("/summary", h.statusSummary)
	r.With(h.authorize(auth.ResourceReports, auth.ActionDriver)).Get("/driver/summary", h.driverSummary)
	r.With(h.authorize(auth.ResourceReports, auth.ActionDriver)).Get("/driver", h.driverOrders)

	r.With(h.authorize(auth.ResourceOrders, auth.ActionRead)).Get("/track/{trackOrder}", h.getByTrackingCode)
	r.With(h.authorize(auth.ResourceOrders, auth.ActionScan)).Get("/token/{orderToken}", h.getByToken)
	r.With(h.authorize(auth.ResourceOrders, auth.ActionList)).Get("/receiver/{receiverID}", h.getByReceiver)
	r.With(h.authorize(auth.ResourceOrders, auth.ActionList)).Get("/owner/{ownerID}", h.listByOwner)

	r.With(h.authorize(auth.ResourceOrders, auth.ActionRead)).Get("/{orderID}", h.getOrder)
	r.With(h.authorize(auth.ResourceOrders, auth.ActionUpdate)).Patch("/{orderID}", h.updateOrder)
}

func (h *OrderHandlers) authorize(obj, act string) func(http.Handler) http.Handler {
	if h.policy == nil {
		return passThrough
	}
	return h.policy.Authorize(obj, act)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return
	}
	pickup, err := parseDateParam(req.PickupDate)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pickup_date "+err.Error(), http.StatusBadRequest))
		return
	}
	drop, err := parseDateParam(req.DropDate)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "drop_date "+err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		ActorID:     identity.UID,
		ReceiverID:  req.Receiver,
		ServiceType: req.ServiceType,
		Message:     req.Message,
		Products:    make([]services.ProductInput, 0, len(req.Products)),
		PickupDate:  pickup,
		DropDate:    drop,
		Shift:       req.Shift,
	}
	for _, product := range req.Products {
		cmd.Products = append(cmd.Products, services.ProductInput{Name: product.Name, Quantity: product.Quantity})
	}

	view, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, "Order created successfully", buildOrderPayload(view))
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	applyOrderUpdate(ctx, w, r, h.orders, identity.UID)
}

// applyOrderUpdate is shared by the user and the internal PATCH routes.
func applyOrderUpdate(ctx context.Context, w http.ResponseWriter, r *http.Request, orders services.OrderService, actorID string) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}
	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return
	}

	view, err := orders.UpdateOrder(ctx, services.UpdateOrderCommand{
		ActorID:  actorID,
		OrderID:  orderID,
		Status:   req.OrderStatus,
		DriverID: req.AssignedDriver,
		Reason:   req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "Order updated successfully", buildOrderPayload(view))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, "orderID", services.OrderService.GetOrder, true)
}

func (h *OrderHandlers) getByTrackingCode(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, "trackOrder", services.OrderService.GetOrderByTrackingCode, false)
}

func (h *OrderHandlers) getByToken(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, "orderToken", services.OrderService.GetOrderByToken, false)
}

func (h *OrderHandlers) getByReceiver(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, "receiverID", services.OrderService.GetOrderByReceiver, true)
}

// lookup resolves one order by a path parameter. When ownerOnly is set, a
// client that does not own the receiver gets a 404 rather than a 403 so
// order ids cannot be probed.
func (h *OrderHandlers) lookup(w http.ResponseWriter, r *http.Request, param string, find func(services.OrderService, context.Context, string) (services.OrderView, error), ownerOnly bool) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	key := strings.TrimSpace(chi.URLParam(r, param))
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", param+" is required", http.StatusBadRequest))
		return
	}

	view, err := find(h.orders, ctx, key)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if ownerOnly && !canSeeOrder(identity, view) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "Order retrieved successfully", buildOrderPayload(view))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if !isPrivileged(identity) {
		owner = identity.UID
	}
	h.list(w, r, owner)
}

func (h *OrderHandlers) listByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	owner := strings.TrimSpace(chi.URLParam(r, "ownerID"))
	if owner == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "owner id is required", http.StatusBadRequest))
		return
	}
	if !isPrivileged(identity) && owner != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "cannot list orders of another account", http.StatusForbidden))
		return
	}
	h.list(w, r, owner)
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request, owner string) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}
	params, err := pagination.FromRequest(r, h.paging)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter := services.OrderListFilter{
		OwnerID: owner,
		Page:    params.Page,
		Limit:   params.Limit,
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filter.Status = &status
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WritePage(w, "Orders retrieved successfully", buildOrderPayloads(page.Items), httpx.NewPagination(page.Page, page.Limit, page.Total))
}

func canSeeOrder(identity *auth.Identity, view services.OrderView) bool {
	if isPrivileged(identity) {
		return true
	}
	return view.Owner != nil && view.Owner.ID == identity.UID
}

// isPrivileged reports whether identity may act beyond its own customers.
// Drivers see every order because any of them can be dispatched to it.
func isPrivileged(identity *auth.Identity) bool {
	return identity.HasAnyRole(auth.RoleAdmin, auth.RoleDriver)
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func passThrough(next http.Handler) http.Handler { return next }

// parseDateParam accepts RFC3339 timestamps and bare YYYY-MM-DD dates (UTC midnight).
func parseDateParam(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if ts, err := time.Parse(layout, value); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("must be an RFC3339 timestamp or YYYY-MM-DD date")
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNoChanges):
		httpx.WriteError(ctx, w, httpx.NewError("no_changes", "no changes to update", http.StatusBadRequest))
	case errors.Is(err, services.ErrReceiverNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("receiver_not_found", "receiver not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDriverNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("driver_not_found", "driver not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSummaryEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("summary_empty", "no orders found for today", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently, retry the request", http.StatusConflict))
	case errors.Is(err, services.ErrSequenceUnavailable), errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order store unavailable, retry later", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
