package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskhive/platform/internal/token"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// --- Auth ---

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func testValidator(t *testing.T) *token.Validator {
	t.Helper()
	v, err := token.NewValidator(testSecret, "HS256")
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	return v
}

func TestAuthRejectsMissingAndMalformedCredentials(t *testing.T) {
	handler := Auth(testValidator(t))(okHandler())

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
				t.Errorf("WWW-Authenticate = %q, want Bearer", got)
			}
		})
	}
}

func TestAuthStoresClaims(t *testing.T) {
	var claims *token.Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Auth(testValidator(t))(inner)

	raw := signToken(t, jwt.MapClaims{
		"sub":       "user-7",
		"tenant_id": "tenant-1",
		"role":      "member",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if claims == nil || claims.Subject != "user-7" || claims.TenantID != "tenant-1" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestRequireRole(t *testing.T) {
	handler := Auth(testValidator(t))(RequireRole("admin")(okHandler()))

	member := signToken(t, jwt.MapClaims{
		"sub": "u1", "role": "member", "exp": time.Now().Add(time.Hour).Unix(),
	})
	admin := signToken(t, jwt.MapClaims{
		"sub": "u2", "role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/internal/services", nil)
	req.Header.Set("Authorization", "Bearer "+member)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("member status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/services", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", rec.Code)
	}
}

// --- Tenant ---

func TestRequireTenant(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireTenant(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("without tenant: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req = req.WithContext(WithTenantID(req.Context(), "tenant-1"))
	rec = httptest.NewRecorder()
	RequireTenant(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with tenant: status = %d, want 200", rec.Code)
	}
}

func TestTenantIDFromContextDefault(t *testing.T) {
	if got := TenantIDFromContext(context.Background()); got != "" {
		t.Errorf("TenantIDFromContext = %q, want empty", got)
	}
}

// --- Rate limit ---

type stubLimiter struct {
	allowed   bool
	remaining int
	err       error
	keys      []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int) (bool, int, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.remaining, s.err
}

func TestRateLimitHeaders(t *testing.T) {
	lim := &stubLimiter{allowed: true, remaining: 2}
	handler := RateLimit(lim, 3, time.Minute, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("missing X-RateLimit-Reset")
	}
}

func TestRateLimitDenial(t *testing.T) {
	lim := &stubLimiter{allowed: false, remaining: 0}
	handler := RateLimit(lim, 3, time.Minute, discardLogger())(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	lim := &stubLimiter{err: errors.New("kv unavailable")}
	handler := RateLimit(lim, 3, time.Minute, discardLogger())(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("backend error: status = %d, want 200 (fail open)", rec.Code)
	}
}

func TestRateLimitExemptsHealth(t *testing.T) {
	lim := &stubLimiter{allowed: false}
	handler := RateLimit(lim, 3, time.Minute, discardLogger())(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("health probe status = %d, want 200", rec.Code)
	}
	if len(lim.keys) != 0 {
		t.Errorf("health probe consulted the limiter: %v", lim.keys)
	}
}

func TestClientKey(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr", "203.0.113.9:4021", "", "203.0.113.9"},
		{"forwarded single", "10.0.0.1:80", "198.51.100.7", "198.51.100.7"},
		{"forwarded chain", "10.0.0.1:80", "198.51.100.7, 10.0.0.2", "198.51.100.7"},
		{"forwarded padded", "10.0.0.1:80", "  198.51.100.7  ", "198.51.100.7"},
		{"no port", "203.0.113.9", "", "203.0.113.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := ClientKey(req); got != tc.want {
				t.Errorf("ClientKey = %q, want %q", got, tc.want)
			}
		})
	}
}
