// Package middleware provides the gateway's HTTP request pipeline stages.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/taskhive/platform/internal/domain"
	"github.com/taskhive/platform/internal/resolver"
)

type tenantCtxKey struct{}

// exemptPath reports whether a path short-circuits tenant resolution:
// health probes, authentication endpoints and the bare root never carry
// tenant context.
func exemptPath(path string) bool {
	return path == "/" ||
		strings.HasPrefix(path, "/health") ||
		strings.HasPrefix(path, "/api/auth")
}

// ResolveTenant is middleware that establishes tenant context for the
// request. An unresolved tenant is not an error here; RequireTenant decides
// per route whether context is mandatory.
func ResolveTenant(res *resolver.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if tid, ok := res.Resolve(r); ok {
				r = r.WithContext(WithTenantID(r.Context(), tid))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithTenantID returns a context carrying the resolved tenant ID.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantIDFromContext returns the resolved tenant ID, or "" if none was
// established for this request.
func TenantIDFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(tenantCtxKey{}).(string)
	return tid
}

// RequireTenant rejects requests on tenant-scoped routes that reached this
// point without tenant context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TenantIDFromContext(r.Context()) == "" {
			writeError(w, http.StatusBadRequest, domain.ErrTenantRequired.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
