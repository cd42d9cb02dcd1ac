package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	policy, err := NewPolicy("")
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	cases := []struct {
		role, obj, act string
		want           bool
	}{
		{RoleClient, ResourceOrders, ActionCreate, true},
		{RoleClient, ResourceOrders, ActionUpdate, false},
		{RoleDriver, ResourceOrders, ActionUpdate, true},
		{RoleDriver, ResourceOrders, ActionCreate, false},
		{RoleDriver, ResourceReports, ActionDriver, true},
		{RoleAdmin, ResourceOrders, ActionCreate, true},
		{RoleAdmin, ResourceReports, ActionRead, true},
		{RoleClient, ResourceReports, ActionRead, false},
	}
	for _, tc := range cases {
		got, err := policy.Allowed(&Identity{UID: "u", Roles: []string{tc.role}}, tc.obj, tc.act)
		if err != nil {
			t.Fatalf("enforce: %v", err)
		}
		if got != tc.want {
			t.Errorf("%s %s %s: got %v want %v", tc.role, tc.obj, tc.act, got, tc.want)
		}
	}
}

func TestPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.csv")
	rules := "p, driver, orders, create\np, client, orders, read\ng, admin, driver\n"
	if err := os.WriteFile(path, []byte(rules), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	policy, err := NewPolicy(path)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	ok, _ := policy.Allowed(&Identity{Roles: []string{RoleDriver}}, ResourceOrders, ActionCreate)
	if !ok {
		t.Fatalf("expected file rule to grant access")
	}
	ok, _ = policy.Allowed(&Identity{Roles: []string{RoleDriver}}, ResourceOrders, ActionUpdate)
	if ok {
		t.Fatalf("expected default rules to be ignored when a file is configured")
	}
	ok, _ = policy.Allowed(&Identity{Roles: []string{RoleAdmin}}, ResourceOrders, ActionCreate)
	if !ok {
		t.Fatalf("expected file grouping to give admins the driver grants")
	}
	ok, _ = policy.Allowed(&Identity{Roles: []string{RoleAdmin}}, ResourceOrders, ActionRead)
	if ok {
		t.Fatalf("expected admins not to inherit client grants absent from the file")
	}
}

func TestPolicyFromMissingFile(t *testing.T) {
	if _, err := NewPolicy(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("expected an error for a missing policy file")
	}
}

func TestAuthorizeMiddleware(t *testing.T) {
	policy, _ := NewPolicy("")
	handler := policy.Authorize(ResourceReports, ActionRead)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	req = req.WithContext(WithIdentity(req.Context(), &Identity{UID: "c1", Roles: []string{RoleClient}}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client, got %d", rec.Code)
	}

	req = req.WithContext(WithIdentity(req.Context(), &Identity{UID: "a1", Roles: []string{RoleAdmin}}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}
