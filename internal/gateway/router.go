// Package gateway composes the request pipeline and exposes the externally
// visible HTTP surface of the platform gateway.
package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taskhive/platform/internal/middleware"
	"github.com/taskhive/platform/internal/proxy"
	"github.com/taskhive/platform/internal/ratelimit"
	"github.com/taskhive/platform/internal/registry"
	"github.com/taskhive/platform/internal/resolver"
	"github.com/taskhive/platform/internal/token"
)

// Deps is the gateway's dependency graph, assembled once at startup. All
// shared mutable state (registry, limiter, tenant cache inside the resolver)
// is owned here and passed down, never reached through globals.
type Deps struct {
	Registry   *registry.Registry
	Forwarder  *proxy.Forwarder
	Resolver   *resolver.Resolver
	Validator  *token.Validator
	Limiter    ratelimit.Limiter
	RateLimit  int
	RateWindow time.Duration
	CORSOrigin string
	Logger     *slog.Logger
}

// route describes one proxied mount point.
type route struct {
	pattern string // chi pattern under /api
	service string // upstream service name
	auth    bool   // requires a valid bearer token
	tenant  bool   // requires resolved tenant context
}

// routes is the gateway's routing table. The upstream receives the inbound
// path with the /api prefix stripped.
var routes = []route{
	{"/api/auth/*", "user-management", false, false},
	{"/api/users/*", "user-management", true, false},
	{"/api/roles/*", "user-management", true, false},
	{"/api/tenants/*", "tenant-directory", true, false},
	{"/api/projects/*", "project-service", true, true},
	{"/api/boards/*", "project-service", true, true},
	{"/api/tasks/*", "project-service", true, true},
	{"/api/urls/*", "url-shortener", false, true},
	{"/api/analytics/*", "analytics", true, true},
}

// NewRouter builds the gateway's HTTP handler: logging, rate limiting and
// tenant resolution run for every request; authentication and tenant
// enforcement are attached per route.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(d.CORSOrigin))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.RateLimit(d.Limiter, d.RateLimit, d.RateWindow, d.Logger))
	r.Use(middleware.ResolveTenant(d.Resolver))

	r.Get("/health", healthHandler)
	r.Get("/health/ready", healthHandler)

	authn := middleware.Auth(d.Validator)
	for _, rt := range routes {
		h := forwardHandler(d.Forwarder, rt.service)
		var wrapped http.Handler = h
		if rt.tenant {
			wrapped = middleware.RequireTenant(wrapped)
		}
		if rt.auth {
			wrapped = authn(wrapped)
		}
		r.Handle(rt.pattern, wrapped)
	}

	// Runtime service registry administration.
	r.Route("/internal/services", func(sr chi.Router) {
		sr.Use(authn)
		sr.Use(middleware.RequireRole("admin"))
		sr.Get("/", listServicesHandler(d.Registry))
		sr.Put("/{name}", registerServiceHandler(d.Registry, d.Logger))
		sr.Delete("/{name}", unregisterServiceHandler(d.Registry, d.Logger))
	})

	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(notFoundHandler)

	return r
}

// forwardHandler relays the request to the named upstream with the /api
// prefix stripped from the path.
func forwardHandler(fwd *proxy.Forwarder, service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")
		fwd.Forward(w, r, service, path)
	}
}
