// Package proxy forwards gateway requests to the upstream service resolved
// through the service registry, preserving tenant context.
package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/taskhive/platform/internal/domain"
	"github.com/taskhive/platform/internal/middleware"
	"github.com/taskhive/platform/internal/registry"
	"github.com/taskhive/platform/internal/resilience"
	"github.com/taskhive/platform/internal/resolver"
)

// Forwarder relays inbound requests to upstream services. One circuit
// breaker per service name protects the gateway from a dead upstream.
type Forwarder struct {
	registry    *registry.Registry
	client      *http.Client
	logger      *slog.Logger
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// New creates a forwarder. Outbound calls carry the given timeout and follow
// redirects.
func New(reg *registry.Registry, timeout time.Duration, maxFailures int, cooldown time.Duration, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		registry:    reg,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		breakers:    make(map[string]*resilience.Breaker),
	}
}

// Forward resolves serviceName, rewrites the inbound request onto
// {base}/{path} and relays the upstream response verbatim. An unregistered
// service or an unreachable upstream both answer 503; nothing is retried
// here, retrying is the client's decision.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, serviceName, path string) {
	base, ok := f.registry.Resolve(serviceName)
	if !ok {
		f.logger.Warn("service not registered", "service", serviceName)
		writeError(w, http.StatusServiceUnavailable,
			fmt.Sprintf("%s: %s", domain.ErrServiceUnavailable, serviceName))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	target := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to build upstream request")
		return
	}

	copyHeaders(out.Header, r.Header)

	// The resolved tenant is authoritative: it overrides whatever the
	// client put in the header.
	if tid := middleware.TenantIDFromContext(r.Context()); tid != "" {
		out.Header.Set(resolver.HeaderTenantID, tid)
	}

	var resp *http.Response
	err = f.breaker(serviceName).Execute(func() error {
		var doErr error
		resp, doErr = f.client.Do(out)
		return doErr
	})
	if err != nil {
		f.logger.Error("upstream call failed", "service", serviceName, "target", target, "error", err)
		writeError(w, http.StatusServiceUnavailable, domain.ErrUpstream.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		f.logger.Warn("relay interrupted", "service", serviceName, "error", err)
	}
}

// breaker returns the circuit breaker for a service, creating it on first use.
func (f *Forwarder) breaker(serviceName string) *resilience.Breaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.breakers[serviceName]
	if !ok {
		b = resilience.NewBreaker(f.maxFailures, f.cooldown)
		f.breakers[serviceName] = b
	}
	return b
}

// copyHeaders copies all inbound headers except Host, which is set from the
// target URL by the transport.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if strings.EqualFold(name, "Host") {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
