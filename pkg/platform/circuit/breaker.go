// Package circuit provides a small circuit breaker for remote backends.
// When a backend is unhealthy the circuit opens and callers fail fast
// instead of stacking up timeouts against a dead host.
package circuit

import (
	"sync"
	"time"
)

// Breaker tracks consecutive failures against one backend.
type Breaker struct {
	mu sync.RWMutex

	threshold int           // failures to trigger open
	cooldown  time.Duration // how long to stay open

	failures  int       // consecutive failures
	openUntil time.Time // when to transition from open to half-open
	isOpen    bool
}

// New creates a breaker. threshold is the number of consecutive failures
// to open the circuit; cooldown is how long to stay open before letting a
// probe through. Non-positive values fall back to defaults.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow returns true if the circuit is closed (healthy) or half-open
// (cooldown expired, probing).
func (b *Breaker) Allow() bool {
	b.mu.RLock()
	if !b.isOpen {
		b.mu.RUnlock()
		return true
	}
	expired := time.Now().After(b.openUntil)
	b.mu.RUnlock()

	if expired {
		b.mu.Lock()
		defer b.mu.Unlock()

		// Double-check after acquiring write lock
		if b.isOpen && time.Now().After(b.openUntil) {
			b.isOpen = false
			b.failures = 0
		}
		return !b.isOpen
	}

	return false
}

// RecordSuccess records a successful operation, closing the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.isOpen = false
}

// RecordFailure records a failed operation, potentially opening the circuit.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold {
		b.isOpen = true
		b.openUntil = time.Now().Add(b.cooldown)
	}
}

// IsOpen returns true if the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isOpen
}

// Reset manually closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.isOpen = false
}
