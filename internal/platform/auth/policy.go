package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/northline-logistics/api/internal/platform/httpx"
)

// Resources and actions checked by the route policy.
const (
	ResourceOrders    = "orders"
	ResourceCustomers = "customers"
	ResourceReports   = "reports"

	ActionCreate = "create"
	ActionRead   = "read"
	ActionList   = "list"
	ActionUpdate = "update"
	ActionScan   = "scan"
	ActionDriver = "driver"
)

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var defaultRules = [][]string{
	{RoleClient, ResourceOrders, ActionCreate},
	{RoleClient, ResourceOrders, ActionRead},
	{RoleClient, ResourceOrders, ActionList},
	{RoleClient, ResourceCustomers, ActionCreate},
	{RoleClient, ResourceCustomers, ActionRead},
	{RoleClient, ResourceCustomers, ActionList},
	{RoleClient, ResourceCustomers, ActionUpdate},

	{RoleDriver, ResourceOrders, ActionRead},
	{RoleDriver, ResourceOrders, ActionUpdate},
	{RoleDriver, ResourceOrders, ActionScan},
	{RoleDriver, ResourceReports, ActionDriver},

	{RoleAdmin, ResourceOrders, ActionUpdate},
	{RoleAdmin, ResourceOrders, ActionScan},
	{RoleAdmin, ResourceReports, ActionRead},
}

// admins inherit every client grant
var defaultGroupings = [][]string{
	{RoleAdmin, RoleClient},
}

// Policy decides whether a role may perform an action on a resource.
type Policy struct {
	enforcer casbin.IEnforcer
}

// NewPolicy loads rules from path in casbin CSV form, or the built-in rules when path is empty.
func NewPolicy(path string) (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("auth: policy model: %w", err)
	}
	if path = strings.TrimSpace(path); path != "" {
		enforcer, err := casbin.NewEnforcer(m, fileadapter.NewAdapter(path))
		if err != nil {
			return nil, fmt.Errorf("auth: load policy %s: %w", path, err)
		}
		return &Policy{enforcer: enforcer}, nil
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("auth: policy enforcer: %w", err)
	}
	if _, err := enforcer.AddPolicies(defaultRules); err != nil {
		return nil, fmt.Errorf("auth: default policy: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(defaultGroupings); err != nil {
		return nil, fmt.Errorf("auth: default groupings: %w", err)
	}
	return &Policy{enforcer: enforcer}, nil
}

// Allowed reports whether any of identity's roles grants act on obj.
func (p *Policy) Allowed(identity *Identity, obj, act string) (bool, error) {
	if p == nil || identity == nil {
		return false, nil
	}
	for _, role := range identity.Roles {
		ok, err := p.enforcer.Enforce(role, obj, act)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Authorize must run after RequireAuth. It answers 403 when the policy denies.
func (p *Policy) Authorize(obj, act string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := IdentityFromContext(ctx)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			allowed, err := p.Allowed(identity, obj, act)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("policy_error", "authorization check failed", http.StatusInternalServerError))
				return
			}
			if !allowed {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to "+act+" "+obj, http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
