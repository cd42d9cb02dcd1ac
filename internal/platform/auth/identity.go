package auth

import (
	"context"
	"strings"
)

// Roles known to the API. The identity service stamps one of them on every token.
const (
	RoleClient = "client"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// Identity is the authenticated end user behind a request.
type Identity struct {
	UID      string
	Email    string
	Name     string
	Roles    []string
	Provider string
}

// Role returns the first role, which is the one used for policy checks.
func (i *Identity) Role() string {
	if i == nil || len(i.Roles) == 0 {
		return ""
	}
	return i.Roles[0]
}

// HasRole reports whether the identity carries role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	for _, r := range i.Roles {
		if normaliseRole(r) == role && role != "" {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries any of roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
