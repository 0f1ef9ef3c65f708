// Package resilience guards the gateway's upstream calls. Each registered
// service gets its own Breaker; a dead upstream trips only its own circuit
// and the rest of the routing table keeps forwarding.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state uint8

const (
	closed state = iota
	open
	halfOpen
)

// successesToClose is the number of consecutive half-open probe successes
// required before traffic flows freely again. One lucky response after a
// cooldown is not proof of recovery.
const successesToClose = 2

// Breaker tracks consecutive failures against one upstream service. After
// maxFailures the circuit opens and calls fail fast for the cooldown; then
// recovery is tested one probe at a time.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu        sync.Mutex
	state     state
	failures  int
	successes int
	probing   bool
	openedAt  time.Time

	now func() time.Time // for testing
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and stays open for the cooldown before probing the upstream.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is rejecting calls. In the half-open
// state exactly one call holds the probe slot at a time; everything else is
// answered ErrCircuitOpen without touching the upstream.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.record(err)
	return err
}

// admit decides whether a call may proceed, claiming the probe slot on the
// open to half-open transition and while half-open.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = halfOpen
		b.successes = 0
		b.probing = true
		return nil
	case halfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// record books the outcome of an admitted call.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == halfOpen {
		b.probing = false
	}

	if err != nil {
		if b.state == halfOpen {
			b.trip()
			return
		}
		b.failures++
		if b.failures >= b.maxFailures {
			b.trip()
		}
		return
	}

	if b.state == halfOpen {
		b.successes++
		if b.successes >= successesToClose {
			b.state = closed
			b.failures = 0
		}
		return
	}
	b.failures = 0
}

// trip must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = open
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
	b.probing = false
}
