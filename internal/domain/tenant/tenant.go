// Package tenant defines the tenant domain model and subdomain rules.
package tenant

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/taskhive/platform/internal/domain"
)

// Tenant represents an isolated customer organization with its own database.
// A Tenant record only exists once provisioning of its coordinates succeeded.
type Tenant struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Subdomain string      `json:"subdomain"`
	Database  Coordinates `json:"database"`
	Active    bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Coordinates locates a tenant's provisioned database. The password is the
// provisioned principal's secret; it is excluded from JSON marshaling and
// only leaves the directory through the explicit connection endpoint.
type Coordinates struct {
	Host     string `json:"db_host"`
	Port     string `json:"db_port"`
	Name     string `json:"db_name"`
	User     string `json:"db_user"`
	Password string `json:"-"`
}

// DSN returns a postgres connection string for the coordinates.
func (c Coordinates) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Name)
}

// String implements fmt.Stringer with the password redacted so coordinates
// can be logged safely.
func (c Coordinates) String() string {
	return fmt.Sprintf("postgres://%s:***@%s:%s/%s", c.User, c.Host, c.Port, c.Name)
}

// CreateRequest holds the fields required to create a new tenant.
type CreateRequest struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
}

// subdomainRe matches a single DNS label: alphanumeric, optional inner
// hyphens, at most 63 characters.
var subdomainRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NormalizeSubdomain lowercases and trims a requested subdomain.
// Uniqueness checks and cache keys always operate on the normalized form.
func NormalizeSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Validate checks a create request and normalizes its subdomain in place.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	r.Subdomain = NormalizeSubdomain(r.Subdomain)
	if r.Subdomain == "" {
		return fmt.Errorf("%w: subdomain is required", domain.ErrValidation)
	}
	if !subdomainRe.MatchString(r.Subdomain) {
		return fmt.Errorf("%w: subdomain must be a valid DNS label", domain.ErrValidation)
	}
	return nil
}
