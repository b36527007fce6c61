package outbound

import (
	"sync"
	"time"
)

// breakerState is one of closed, open, half_open.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// circuitBreaker guards calls to one (service, instance) pair. It is not
// shared across processes — every aria replica tracks its own view of a
// downstream's health, the same granularity the resilient-client pattern in
// the retrieval pack uses.
type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	threshold     int
	cooldown      time.Duration
	state         breakerState
	openedAt      time.Time
	probeInFlight bool
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown, state: stateClosed}
}

// allow reports whether a call may proceed, transitioning open->half_open
// once the cooldown has elapsed.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = stateHalfOpen
		cb.probeInFlight = true
		return true
	case stateHalfOpen:
		// Only the probe that flipped us into half_open may proceed;
		// concurrent callers fail fast until it resolves.
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return true
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = stateClosed
	cb.probeInFlight = false
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
	if cb.state == stateHalfOpen {
		cb.state = stateOpen
		cb.openedAt = time.Now()
		return
	}
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = stateOpen
		cb.openedAt = time.Now()
	}
}

func (cb *circuitBreaker) isOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen && time.Since(cb.openedAt) < cb.cooldown
}
