// Package token verifies bearer tokens and extracts the platform claims the
// gateway routes on.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskhive/platform/internal/domain"
)

// Claims is the identity extracted from a verified token. TenantID may be
// empty: endpoints that establish tenant context by other means accept that,
// and the route decides whether tenant scoping is mandatory.
type Claims struct {
	Subject     string
	TenantID    string
	Role        string
	Permissions []string
	ExpiresAt   time.Time
}

// payload is the raw JWT claim set.
type payload struct {
	TenantID    string   `json:"tenant_id,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HMAC-signed tokens with a fixed expected algorithm.
type Validator struct {
	secret []byte
	method jwt.SigningMethod
}

// NewValidator creates a validator for the given shared secret and algorithm
// name (HS256, HS384 or HS512).
func NewValidator(secret, algorithm string) (*Validator, error) {
	var method jwt.SigningMethod
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &Validator{secret: []byte(secret), method: method}, nil
}

// Validate verifies the token signature and expiry and maps the payload to
// Claims. Any failure, including a missing subject, is domain.ErrInvalidToken.
func (v *Validator) Validate(tokenStr string) (*Claims, error) {
	var p payload
	_, err := jwt.ParseWithClaims(tokenStr, &p,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	if p.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}

	claims := &Claims{
		Subject:     p.Subject,
		TenantID:    p.TenantID,
		Role:        p.Role,
		Permissions: p.Permissions,
	}
	if p.ExpiresAt != nil {
		claims.ExpiresAt = p.ExpiresAt.Time
	}
	return claims, nil
}
