package ratelimit

import (
	"context"
	"sync"
	"time"
)

// LocalWindow is an in-memory sliding-window limiter. Expired instants are
// trimmed lazily on the next call for the same key; there is no background
// sweeper.
type LocalWindow struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	window  time.Duration
	maxKeys int
	now     func() time.Time // for testing
}

// NewLocalWindow creates a limiter with the given trailing window duration.
func NewLocalWindow(window time.Duration) *LocalWindow {
	return &LocalWindow{
		windows: make(map[string][]time.Time),
		window:  window,
		maxKeys: 100000, // cap tracked clients to bound memory
		now:     time.Now,
	}
}

// Allow implements Limiter.
func (l *LocalWindow) Allow(_ context.Context, key string, limit int) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	instants, tracked := l.windows[key]
	if !tracked && len(l.windows) >= l.maxKeys {
		// At capacity for new clients: reject rather than grow unbounded.
		return false, 0, nil
	}

	kept := instants[:0]
	for _, ts := range instants {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.windows[key] = kept
		return false, 0, nil
	}

	kept = append(kept, now)
	l.windows[key] = kept
	return true, limit - len(kept), nil
}

// Len returns the number of tracked client keys (for tests).
func (l *LocalWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
