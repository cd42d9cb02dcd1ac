package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/northline-logistics/api/internal/platform/httpx"
)

// RouteRegistrar attaches a resource's endpoints to its subrouter.
type RouteRegistrar func(r chi.Router)

const (
	defaultAPIPrefix      = "/api/v1"
	defaultRequestTimeout = 60 * time.Second
)

// routeGroup is one resource mounted under the API prefix.
type routeGroup struct {
	path        string
	register    RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	basePath    string
	timeout     time.Duration
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	metrics     http.Handler
	groups      map[string]*routeGroup
}

// Option customises the router.
type Option func(*routerConfig)

// groupOrder fixes the mount order so route conflicts resolve the same way every start.
var groupOrder = []string{"/orders", "/customers", "/internal"}

// NewRouter builds the HTTP surface: probes and metrics at the root, resources under the
// API prefix. A resource without a registrar answers 503 so a partially configured
// instance fails loudly instead of returning 404s.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		timeout:  defaultRequestTimeout,
		groups:   make(map[string]*routeGroup, len(groupOrder)),
	}
	for _, path := range groupOrder {
		cfg.groups[path] = &routeGroup{path: path}
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, path := range groupOrder {
			group := cfg.groups[path]
			api.Route(group.path, func(sub chi.Router) {
				for _, mw := range group.middlewares {
					if mw != nil {
						sub.Use(mw)
					}
				}
				if group.register == nil {
					unavailable(sub, strings.TrimPrefix(group.path, "/"))
					return
				}
				group.register(sub)
			})
		}
	})

	return r
}

func unavailable(r chi.Router, resource string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("resource_unavailable", resource+" are not served by this instance", http.StatusServiceUnavailable))
	}
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
	r.HandleFunc("/", handler)
	r.HandleFunc("/*", handler)
}

// WithBasePath replaces the /api/v1 prefix. Blank values are ignored.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		path = strings.TrimRight(strings.TrimSpace(path), "/")
		if path == "" {
			return
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		cfg.basePath = path
	}
}

// WithRequestTimeout bounds every handler's context.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithMiddlewares appends global middleware, run after request id and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithMetricsHandler exposes h at /metrics, outside the API prefix.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = h
	}
}

func WithOrderRoutes(reg RouteRegistrar) Option {
	return withGroup("/orders", reg)
}

func WithCustomerRoutes(reg RouteRegistrar) Option {
	return withGroup("/customers", reg)
}

func WithInternalRoutes(reg RouteRegistrar) Option {
	return withGroup("/internal", reg)
}

// WithInternalMiddlewares guards the /internal group, typically with OIDC verification.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		group := cfg.groups["/internal"]
		group.middlewares = append(group.middlewares, mw...)
	}
}

func withGroup(path string, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups[path].register = reg
	}
}
