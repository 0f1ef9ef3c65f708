package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/taskhive/platform/internal/token"
)

type claimsCtxKey struct{}

// Auth returns middleware that requires a valid Bearer token and stores the
// verified claims in the request context. Missing or malformed credentials
// answer 401 with a WWW-Authenticate challenge.
func Auth(validator *token.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				challenge(w, "authorization required")
				return
			}

			raw := strings.TrimPrefix(authHeader, "Bearer ")
			if raw == authHeader || raw == "" {
				challenge(w, "invalid authorization header")
				return
			}

			claims, err := validator.Validate(raw)
			if err != nil {
				challenge(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the verified claims, or nil on unauthenticated
// requests.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	c, _ := ctx.Value(claimsCtxKey{}).(*token.Claims)
	return c
}

// RequireRole returns middleware that restricts a route to callers whose
// token carries one of the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				challenge(w, "authorization required")
				return
			}
			if !allowed[claims.Role] {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// challenge writes a 401 with the Bearer challenge header.
func challenge(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, message)
}
