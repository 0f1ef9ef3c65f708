package resolver

import "github.com/dgraph-io/ristretto/v2"

// TenantCache is a ristretto-backed subdomain -> tenant ID cache. Entries
// carry no TTL: a cached mapping is trusted for the process lifetime, which
// mirrors the immutability of a tenant's subdomain. Deleting a tenant still
// requires a gateway restart to drop its cached mapping.
type TenantCache struct {
	c *ristretto.Cache[string, string]
}

// NewTenantCache creates a cache bounded to maxCostBytes of cached values.
func NewTenantCache(maxCostBytes int64) (*TenantCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &TenantCache{c: c}, nil
}

// Get returns the cached tenant ID for a subdomain.
func (tc *TenantCache) Get(subdomain string) (string, bool) {
	return tc.c.Get(subdomain)
}

// Set stores a subdomain mapping without expiry.
func (tc *TenantCache) Set(subdomain, tenantID string) {
	tc.c.Set(subdomain, tenantID, int64(len(subdomain)+len(tenantID)))
}

// Wait blocks until buffered writes are applied. Tests use it to make Set
// immediately visible.
func (tc *TenantCache) Wait() {
	tc.c.Wait()
}

// Close releases cache resources.
func (tc *TenantCache) Close() {
	tc.c.Close()
}
