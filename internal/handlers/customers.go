package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/northline-logistics/api/internal/platform/auth"
	"github.com/northline-logistics/api/internal/platform/httpx"
	"github.com/northline-logistics/api/internal/platform/pagination"
	"github.com/northline-logistics/api/internal/services"
)

type addressRequest struct {
	Province   string `json:"province"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
}

type createCustomerRequest struct {
	FullName     string         `json:"full_name"`
	BusinessName string         `json:"business_name"`
	Email        string         `json:"email"`
	MobileNumber string         `json:"mobile_number"`
	Address      addressRequest `json:"address"`
}

type addressPatch struct {
	Province   *string `json:"province"`
	City       *string `json:"city"`
	PostalCode *string `json:"postal_code"`
	Address1   *string `json:"address1"`
	Address2   *string `json:"address2"`
}

type updateCustomerRequest struct {
	FullName     *string       `json:"full_name"`
	BusinessName *string       `json:"business_name"`
	Email        *string       `json:"email"`
	MobileNumber *string       `json:"mobile_number"`
	Address      *addressPatch `json:"address"`
}

// CustomerHandlers serves /customers: receivers registered by client accounts.
type CustomerHandlers struct {
	authn     *auth.Authenticator
	policy    *auth.Policy
	customers services.CustomerService
	createMW  []func(http.Handler) http.Handler
	paging    pagination.Options
}

// CustomerHandlerOption customises CustomerHandlers.
type CustomerHandlerOption func(*CustomerHandlers)

// WithCustomerPolicy enforces the role policy on every customer route.
func WithCustomerPolicy(policy *auth.Policy) CustomerHandlerOption {
	return func(h *CustomerHandlers) {
		h.policy = policy
	}
}

// WithCustomerCreateMiddleware wraps POST /customers.
func WithCustomerCreateMiddleware(mw ...func(http.Handler) http.Handler) CustomerHandlerOption {
	return func(h *CustomerHandlers) {
		h.createMW = append(h.createMW, mw...)
	}
}

// NewCustomerHandlers constructs CustomerHandlers.
func NewCustomerHandlers(authn *auth.Authenticator, customers services.CustomerService, opts ...CustomerHandlerOption) *CustomerHandlers {
	h := &CustomerHandlers{
		authn:     authn,
		customers: customers,
		paging:    pagination.Options{DefaultLimit: pagination.DefaultMaxLimit, MaxLimit: pagination.DefaultMaxLimit},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /customers endpoints.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	create := append([]func(http.Handler) http.Handler{h.authorize(auth.ActionCreate)}, h.createMW...)
	r.With(create...).Post("/", h.createCustomer)
	r.With(h.authorize(auth.ActionList)).Get("/", h.listCustomers)
	r.With(h.authorize(auth.ActionRead)).Get("/{customerID}", h.getCustomer)
	r.With(h.authorize(auth.ActionUpdate)).Patch("/{customerID}", h.updateCustomer)
}

func (h *CustomerHandlers) authorize(act string) func(http.Handler) http.Handler {
	if h.policy == nil {
		return passThrough
	}
	return h.policy.Authorize(auth.ResourceCustomers, act)
}

func (h *CustomerHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		writeServiceUnavailable(ctx, w, "customer")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req createCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return
	}

	customer, err := h.customers.CreateCustomer(ctx, services.CreateCustomerCommand{
		OwnerID:      identity.UID,
		FullName:     req.FullName,
		BusinessName: req.BusinessName,
		Email:        req.Email,
		MobileNumber: req.MobileNumber,
		Address: services.Address{
			Province:   req.Address.Province,
			City:       req.Address.City,
			PostalCode: req.Address.PostalCode,
			Address1:   req.Address.Address1,
			Address2:   req.Address.Address2,
		},
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, "Customer created successfully", buildCustomerPayload(customer))
}

func (h *CustomerHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		writeServiceUnavailable(ctx, w, "customer")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	params, err := pagination.FromRequest(r, h.paging)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.customers.ListCustomers(ctx, services.CustomerListFilter{
		Requester: requesterFor(identity),
		Page:      params.Page,
		Limit:     params.Limit,
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	items := make([]customerPayload, 0, len(page.Items))
	for _, customer := range page.Items {
		items = append(items, buildCustomerPayload(customer))
	}
	httpx.WritePage(w, "Customers retrieved successfully", items, httpx.NewPagination(page.Page, page.Limit, page.Total))
}

func (h *CustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		writeServiceUnavailable(ctx, w, "customer")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	customerID := strings.TrimSpace(chi.URLParam(r, "customerID"))
	customer, err := h.customers.GetCustomer(ctx, customerID, requesterFor(identity))
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "Customer retrieved successfully", buildCustomerPayload(customer))
}

func (h *CustomerHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.customers == nil {
		writeServiceUnavailable(ctx, w, "customer")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.BodyError(err))
		return
	}

	cmd := services.UpdateCustomerCommand{
		Requester:    requesterFor(identity),
		CustomerID:   strings.TrimSpace(chi.URLParam(r, "customerID")),
		FullName:     req.FullName,
		BusinessName: req.BusinessName,
		Email:        req.Email,
		MobileNumber: req.MobileNumber,
	}
	if req.Address != nil {
		cmd.Province = req.Address.Province
		cmd.City = req.Address.City
		cmd.PostalCode = req.Address.PostalCode
		cmd.Address1 = req.Address.Address1
		cmd.Address2 = req.Address.Address2
	}

	customer, err := h.customers.UpdateCustomer(ctx, cmd)
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "Customer updated successfully", buildCustomerPayload(customer))
}

func requesterFor(identity *auth.Identity) services.Requester {
	return services.Requester{ID: identity.UID, Admin: identity.HasRole(auth.RoleAdmin)}
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerConflict):
		// the wrapped message names the field, e.g. "email must be unique"
		httpx.WriteError(ctx, w, httpx.NewError("customer_conflict", conflictMessage(err), http.StatusConflict))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "customer belongs to another account", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("customer_store_unavailable", "customer store unavailable, retry later", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("customer_error", "failed to process customer request", http.StatusInternalServerError))
	}
}

func conflictMessage(err error) string {
	msg := err.Error()
	prefix := services.ErrCustomerConflict.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		return strings.TrimPrefix(msg, prefix)
	}
	return "customer already exists"
}
