package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// SharedWindow is a fleet-wide sliding-window limiter backed by NATS
// JetStream KV. Each client key maps to the JSON-encoded list of its request
// instants inside the trailing window; trim+insert happens under a
// revision-checked compare-and-swap, so concurrent gateway instances never
// over-admit. Idle keys expire through the bucket TTL.
type SharedWindow struct {
	kv     jetstream.KeyValue
	window time.Duration
	now    func() time.Time // for testing
}

// casRetries bounds the optimistic-concurrency retry loop per call.
const casRetries = 5

// NewSharedWindow creates the KV bucket (TTL = window, so abandoned client
// entries age out) and returns the limiter.
func NewSharedWindow(ctx context.Context, js jetstream.JetStream, bucket string, window time.Duration) (*SharedWindow, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    window,
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit kv bucket %q: %w", bucket, err)
	}
	return &SharedWindow{kv: kv, window: window, now: time.Now}, nil
}

// Allow implements Limiter.
func (s *SharedWindow) Allow(ctx context.Context, key string, limit int) (bool, int, error) {
	kvKey := sanitizeKey(key)

	var lastErr error
	for range casRetries {
		allowed, remaining, retry, err := s.tryOnce(ctx, kvKey, limit)
		if err == nil {
			return allowed, remaining, nil
		}
		if !retry {
			return false, 0, err
		}
		lastErr = err
	}
	return false, 0, fmt.Errorf("ratelimit cas exhausted for %s: %w", kvKey, lastErr)
}

// tryOnce performs one read-trim-append-CAS cycle. retry reports whether the
// error was a concurrent-writer conflict worth retrying.
func (s *SharedWindow) tryOnce(ctx context.Context, key string, limit int) (allowed bool, remaining int, retry bool, err error) {
	now := s.now()
	cutoff := now.Add(-s.window).UnixNano()

	entry, err := s.kv.Get(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, 0, false, fmt.Errorf("ratelimit get: %w", err)
	}

	var instants []int64
	var revision uint64
	if entry != nil {
		if jsonErr := json.Unmarshal(entry.Value(), &instants); jsonErr != nil {
			// Corrupt value: start a fresh window rather than lock the client out.
			instants = nil
		}
		revision = entry.Revision()
	}

	kept := instants[:0]
	for _, ts := range instants {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		return false, 0, false, nil
	}

	kept = append(kept, now.UnixNano())
	data, err := json.Marshal(kept)
	if err != nil {
		return false, 0, false, fmt.Errorf("ratelimit encode: %w", err)
	}

	if revision == 0 {
		if _, err := s.kv.Create(ctx, key, data); err != nil {
			return false, 0, true, fmt.Errorf("ratelimit create: %w", err)
		}
	} else {
		if _, err := s.kv.Update(ctx, key, data, revision); err != nil {
			return false, 0, true, fmt.Errorf("ratelimit update: %w", err)
		}
	}

	return true, limit - len(kept), false, nil
}

// kvKeyReplacer maps characters that are invalid in KV keys (IPv6 colons,
// X-Forwarded-For spillover) onto NATS-safe ones.
var kvKeyReplacer = strings.NewReplacer(":", "_", " ", "_", ",", "_")

func sanitizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	return kvKeyReplacer.Replace(key)
}
