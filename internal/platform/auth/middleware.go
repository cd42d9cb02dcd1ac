package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/northline-logistics/api/internal/platform/httpx"
	"github.com/northline-logistics/api/internal/platform/requestctx"
)

const defaultRoleClaim = "role"

// Authenticator verifies bearer tokens and stores the resulting Identity on the request.
type Authenticator struct {
	verifier  TokenVerifier
	provider  string
	roleClaim string
	timeout   time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the claim roles are read from.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithVerificationTimeout bounds token verification.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator wraps verifier. provider names the backend in identities and logs.
func NewAuthenticator(verifier TokenVerifier, provider string, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:  verifier,
		provider:  provider,
		roleClaim: defaultRoleClaim,
		timeout:   defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth rejects requests without a valid token or, when roles are given,
// without one of them.
func (a *Authenticator) RequireAuth(roles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusServiceUnavailable))
				return
			}

			identity, err := a.identify(ctx, token)
			if err != nil {
				requestctx.Logger(ctx).Debug("token verification failed", zap.String("provider", a.provider), zap.Error(err))
				writeVerificationError(ctx, w, err)
				return
			}
			if len(identity.Roles) == 0 {
				httpx.WriteError(ctx, w, httpx.NewError("missing_role", "no role associated with identity", http.StatusForbidden))
				return
			}
			if len(allowed) > 0 && !identity.HasAnyRole(allowed...) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
				return
			}

			ctx = WithIdentity(ctx, identity)
			ctx = requestctx.WithActor(ctx, requestctx.Actor{ID: identity.UID, Role: identity.Role(), Kind: "user"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) identify(ctx context.Context, token string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims == nil || strings.TrimSpace(claims.UID) == "" {
		return nil, ErrTokenInvalid
	}
	return &Identity{
		UID:      claims.UID,
		Email:    claims.Email,
		Name:     claims.Name,
		Roles:    rolesFromClaims(claims.Values, a.roleClaim),
		Provider: a.provider,
	}, nil
}

func writeVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		httpx.WriteError(ctx, w, httpx.NewError("token_expired", "token expired", http.StatusUnauthorized))
	case errors.Is(err, ErrTokenInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "token invalid", http.StatusUnauthorized))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("verification_unavailable", "token verification timed out", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "token verification failed", http.StatusUnauthorized))
	}
}
