// Package resolver determines the owning tenant of an inbound request from
// an explicit header or from the host subdomain, consulting the tenant
// directory on cache misses.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// HeaderTenantID is the explicit tenant header; when present it is
// authoritative and skips subdomain resolution entirely.
const HeaderTenantID = "X-Tenant-ID"

// Cache is the subdomain -> tenant ID cache consumed by the resolver.
type Cache interface {
	Get(subdomain string) (string, bool)
	Set(subdomain, tenantID string)
}

// Resolver resolves tenant context for gateway requests. A resolution
// failure is never surfaced to the caller; the request continues without
// tenant context and the next pipeline stage decides whether that matters.
type Resolver struct {
	cache   Cache
	client  *http.Client
	baseURL string
	logger  *slog.Logger
	lookups singleflight.Group
}

// New creates a resolver that queries {baseURL}/resolve/{subdomain} with the
// given timeout on cache misses.
func New(cache Cache, baseURL string, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:   cache,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Resolve returns the tenant ID for the request and whether one was
// established. The explicit header always wins over subdomain extraction.
func (r *Resolver) Resolve(req *http.Request) (string, bool) {
	if tid := req.Header.Get(HeaderTenantID); tid != "" {
		return tid, true
	}

	subdomain, ok := ExtractSubdomain(req.Host)
	if !ok {
		return "", false
	}

	if tid, hit := r.cache.Get(subdomain); hit {
		return tid, true
	}

	tid, err := r.lookup(req.Context(), subdomain)
	if err != nil {
		r.logger.Warn("tenant lookup failed", "subdomain", subdomain, "error", err)
		return "", false
	}

	r.cache.Set(subdomain, tid)
	return tid, true
}

// lookup queries the tenant directory, collapsing concurrent lookups for the
// same subdomain into a single call. The fetch runs detached from the
// triggering request's cancellation: the collapsed result serves other
// callers, so one client disconnecting must not fail them all. The lookup
// timeout still bounds the call.
func (r *Resolver) lookup(ctx context.Context, subdomain string) (string, error) {
	v, err, _ := r.lookups.Do(subdomain, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.client.Timeout)
		defer cancel()
		return r.fetch(fetchCtx, subdomain)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) fetch(ctx context.Context, subdomain string) (string, error) {
	url := r.baseURL + "/resolve/" + subdomain
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call directory: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("directory returned %d", resp.StatusCode)
	}

	var body struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if body.TenantID == "" {
		return "", fmt.Errorf("directory returned empty tenant_id")
	}
	return body.TenantID, nil
}

// ExtractSubdomain returns the leftmost host label when the host has at
// least three dot-separated labels (e.g. acme.example.com -> acme). Hosts
// with fewer labels carry no subdomain.
func ExtractSubdomain(host string) (string, bool) {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	parts := strings.Split(host, ".")
	if len(parts) < 3 || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}
