// Package registry provides the runtime directory of logical service names to
// network addresses used by the gateway for request routing.
package registry

import (
	"sort"
	"sync"
)

// Registry is a concurrency-safe service name -> base address map.
// Re-registering a name is last-writer-wins; resolving an unregistered name
// is not an error, callers translate absence into service-unavailable.
type Registry struct {
	mu       sync.RWMutex
	services map[string]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{services: make(map[string]string)}
}

// Register maps a service name to its base address, replacing any previous
// registration.
func (r *Registry) Register(name, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = address
}

// Unregister removes a service. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, name)
}

// Resolve returns the registered address for name and whether it exists.
func (r *Registry) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.services[name]
	return addr, ok
}

// List returns the registered service names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the full name -> address map.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.services))
	for name, addr := range r.services {
		out[name] = addr
	}
	return out
}
