// Package ratelimit implements per-client sliding-window admission control.
//
// Two backends satisfy the same contract: LocalWindow keeps windows in
// process memory and is correct for a single gateway instance; SharedWindow
// keeps them in NATS JetStream KV and is correct across a fleet. The backend
// is chosen once at startup.
package ratelimit

import "context"

// Limiter decides whether a request from the given client key is admitted
// under the configured trailing window. It returns whether the request is
// permitted and how many requests remain before the limit is reached.
//
// The check-then-record sequence is atomic per key: two concurrent requests
// for the same client never both consume the last remaining unit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (allowed bool, remaining int, err error)
}
