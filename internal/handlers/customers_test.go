package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/northline-logistics/api/internal/platform/auth"
	"github.com/northline-logistics/api/internal/services"
)

type stubCustomerService struct {
	createFn func(context.Context, services.CreateCustomerCommand) (services.Customer, error)
	getFn    func(context.Context, string, services.Requester) (services.Customer, error)
	listFn   func(context.Context, services.CustomerListFilter) (services.CustomerPage, error)
	updateFn func(context.Context, services.UpdateCustomerCommand) (services.Customer, error)
}

func (s *stubCustomerService) CreateCustomer(ctx context.Context, cmd services.CreateCustomerCommand) (services.Customer, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Customer{}, errors.New("not implemented")
}

func (s *stubCustomerService) GetCustomer(ctx context.Context, id string, requester services.Requester) (services.Customer, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id, requester)
	}
	return services.Customer{}, services.ErrCustomerNotFound
}

func (s *stubCustomerService) ListCustomers(ctx context.Context, filter services.CustomerListFilter) (services.CustomerPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return services.CustomerPage{Items: []services.Customer{}, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *stubCustomerService) UpdateCustomer(ctx context.Context, cmd services.UpdateCustomerCommand) (services.Customer, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Customer{}, errors.New("not implemented")
}

func newCustomerRouter(t *testing.T, svc services.CustomerService, opts ...CustomerHandlerOption) chi.Router {
	t.Helper()
	opts = append([]CustomerHandlerOption{WithCustomerPolicy(newTestPolicy(t))}, opts...)
	handler := NewCustomerHandlers(nil, svc, opts...)
	router := chi.NewRouter()
	router.Route("/customers", handler.Routes)
	return router
}

func TestCustomerHandlersCreate(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	var captured services.CreateCustomerCommand
	svc := &stubCustomerService{
		createFn: func(_ context.Context, cmd services.CreateCustomerCommand) (services.Customer, error) {
			captured = cmd
			if cmd.Email == "taken@example.com" {
				return services.Customer{}, fmt.Errorf("%w: email must be unique", services.ErrCustomerConflict)
			}
			return services.Customer{ID: "cus_1", FullName: cmd.FullName, Email: cmd.Email, OwnerID: cmd.OwnerID, Address: cmd.Address, CreatedAt: now}, nil
		},
	}
	router := newCustomerRouter(t, svc)

	body := `{"full_name":"Wren Lowe","email":"wren@example.com","mobile_number":"+639175550101","address":{"province":"Cebu","city":"Cebu City","postal_code":"6000","address1":"12 Osmena Blvd"}}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(body)), "usr_owner", auth.RoleClient)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OwnerID != "usr_owner" || captured.Address.City != "Cebu City" || captured.MobileNumber != "+639175550101" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var customer customerPayload
	if err := json.Unmarshal(decodeEnvelope(t, rr).Data, &customer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if customer.ID != "cus_1" || customer.OwnerID != "usr_owner" || customer.Address.PostalCode != "6000" {
		t.Fatalf("unexpected customer %+v", customer)
	}

	t.Run("duplicate email", func(t *testing.T) {
		body := `{"full_name":"Other","email":"taken@example.com","mobile_number":"+639175550102"}`
		req := asUser(httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(body)), "usr_owner", auth.RoleClient)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rr.Code)
		}
		var env struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Message != "email must be unique" {
			t.Fatalf("expected field message, got %q", env.Message)
		}
	})

	t.Run("drivers cannot register customers", func(t *testing.T) {
		req := asUser(httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(body)), "usr_driver", auth.RoleDriver)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", rr.Code)
		}
	})
}

func TestCustomerHandlersListAndGet(t *testing.T) {
	var listed services.CustomerListFilter
	svc := &stubCustomerService{
		listFn: func(_ context.Context, filter services.CustomerListFilter) (services.CustomerPage, error) {
			listed = filter
			return services.CustomerPage{Items: []services.Customer{{ID: "cus_1"}}, Total: 1, Page: filter.Page, Limit: filter.Limit}, nil
		},
		getFn: func(_ context.Context, id string, requester services.Requester) (services.Customer, error) {
			if id != "cus_1" {
				return services.Customer{}, services.ErrCustomerNotFound
			}
			if !requester.Admin && requester.ID != "usr_owner" {
				return services.Customer{}, services.ErrCustomerForbidden
			}
			return services.Customer{ID: "cus_1", OwnerID: "usr_owner"}, nil
		},
	}
	router := newCustomerRouter(t, svc)

	req := asUser(httptest.NewRequest(http.MethodGet, "/customers?page=2&limit=5", nil), "usr_admin", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !listed.Requester.Admin || listed.Requester.ID != "usr_admin" || listed.Page != 2 || listed.Limit != 5 {
		t.Fatalf("unexpected filter %+v", listed)
	}
	if env := decodeEnvelope(t, rr); env.Pagination == nil || env.Pagination.Total != 1 {
		t.Fatalf("expected pagination, got %+v", env.Pagination)
	}

	cases := []struct {
		name   string
		path   string
		uid    string
		role   string
		status int
	}{
		{name: "owner", path: "/customers/cus_1", uid: "usr_owner", role: auth.RoleClient, status: http.StatusOK},
		{name: "other client", path: "/customers/cus_1", uid: "usr_other", role: auth.RoleClient, status: http.StatusForbidden},
		{name: "admin", path: "/customers/cus_1", uid: "usr_admin", role: auth.RoleAdmin, status: http.StatusOK},
		{name: "missing", path: "/customers/cus_9", uid: "usr_owner", role: auth.RoleClient, status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := asUser(httptest.NewRequest(http.MethodGet, tc.path, nil), tc.uid, tc.role)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestCustomerHandlersUpdate(t *testing.T) {
	var captured services.UpdateCustomerCommand
	svc := &stubCustomerService{
		updateFn: func(_ context.Context, cmd services.UpdateCustomerCommand) (services.Customer, error) {
			captured = cmd
			if cmd.MobileNumber != nil {
				return services.Customer{}, fmt.Errorf("%w: mobileNumber must be unique", services.ErrCustomerConflict)
			}
			return services.Customer{ID: cmd.CustomerID}, nil
		},
	}
	router := newCustomerRouter(t, svc)

	req := asUser(httptest.NewRequest(http.MethodPatch, "/customers/cus_1", strings.NewReader(`{"full_name":"Wren L.","address":{"city":"Mandaue"}}`)), "usr_owner", auth.RoleClient)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CustomerID != "cus_1" || captured.Requester.ID != "usr_owner" || captured.Requester.Admin {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.FullName == nil || *captured.FullName != "Wren L." || captured.City == nil || *captured.City != "Mandaue" {
		t.Fatalf("expected patched fields, got %+v", captured)
	}
	if captured.Email != nil || captured.Province != nil {
		t.Fatalf("expected untouched fields to stay nil, got %+v", captured)
	}

	req = asUser(httptest.NewRequest(http.MethodPatch, "/customers/cus_1", strings.NewReader(`{"mobile_number":"+639170000000"}`)), "usr_owner", auth.RoleClient)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestWriteCustomerErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: email is required", services.ErrCustomerInvalidInput), http.StatusBadRequest},
		{services.ErrCustomerConflict, http.StatusConflict},
		{services.ErrCustomerNotFound, http.StatusNotFound},
		{services.ErrCustomerForbidden, http.StatusForbidden},
		{services.ErrOrderUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		writeCustomerError(context.Background(), rr, tc.err)
		if rr.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rr.Code)
		}
	}
}
