// Package breaker implements the per-worker circuit breaker guarding
// chained calls. State is scoped per owner key, so one misbehaving worker
// cannot block calls to others.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bizobs/journeysim/pkg/domain"
)

// Defaults match the documented configuration surface.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 10 * time.Second
)

type entry struct {
	state         domain.CircuitState
	failures      int
	lastFailureAt time.Time
}

// Breaker tracks failure/success bookkeeping per owner key and gates
// attempts through the standard CLOSED/OPEN/HALF_OPEN machine.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	entries   map[domain.OwnerKey]*entry
}

// Option configures the breaker.
type Option func(*Breaker)

// WithThreshold sets the consecutive-failure count that opens the circuit.
func WithThreshold(n int) Option {
	return func(b *Breaker) { b.threshold = n }
}

// WithCooldown sets how long the circuit stays open after the last failure.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger sets a structured logger for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) { b.logger = logger }
}

// New creates a breaker with the documented defaults (5 failures, 10s).
func New(opts ...Option) *Breaker {
	b := &Breaker{
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		now:       time.Now,
		logger:    slog.Default(),
		entries:   make(map[domain.OwnerKey]*entry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// get lazily creates the entry for a key. Entries live for the process
// lifetime; there is no eviction.
func (b *Breaker) get(owner domain.OwnerKey) *entry {
	e, ok := b.entries[owner]
	if !ok {
		e = &entry{state: domain.CircuitClosed}
		b.entries[owner] = e
	}
	return e
}

// CanAttempt reports whether a call to the owner may proceed. When the
// cooldown has elapsed on an open circuit, the check itself transitions to
// HALF_OPEN and lets that single attempt through; further checks block
// until the probe's outcome is recorded.
func (b *Breaker) CanAttempt(owner domain.OwnerKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(owner)
	switch e.state {
	case domain.CircuitClosed:
		return true
	case domain.CircuitOpen:
		if b.now().Sub(e.lastFailureAt) >= b.cooldown {
			e.state = domain.CircuitHalfOpen
			b.logger.Debug("breaker half-open, allowing probe", "owner", owner)
			return true
		}
		return false
	case domain.CircuitHalfOpen:
		// A probe is already in flight.
		return false
	}
	return true
}

// RecordOutcome feeds a call outcome into the machine. In HALF_OPEN the
// outcome is decisive: success closes the circuit and resets the failure
// count, failure re-opens it and restarts the cooldown clock.
func (b *Breaker) RecordOutcome(owner domain.OwnerKey, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(owner)
	if success {
		if e.state != domain.CircuitClosed {
			b.logger.Info("breaker closed", "owner", owner)
		}
		e.state = domain.CircuitClosed
		e.failures = 0
		return
	}

	e.failures++
	e.lastFailureAt = b.now()

	switch e.state {
	case domain.CircuitHalfOpen:
		e.state = domain.CircuitOpen
		b.logger.Warn("breaker re-opened after failed probe", "owner", owner)
	case domain.CircuitClosed:
		if e.failures >= b.threshold {
			e.state = domain.CircuitOpen
			b.logger.Warn("breaker opened",
				"owner", owner,
				"failures", e.failures,
				"cooldown", b.cooldown,
			)
		}
	}
}

// State returns the current gate position for a key.
func (b *Breaker) State(owner domain.OwnerKey) domain.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(owner).state
}

// Snapshot returns a read-only view of every tracked entry.
func (b *Breaker) Snapshot() []domain.BreakerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]domain.BreakerInfo, 0, len(b.entries))
	for owner, e := range b.entries {
		infos = append(infos, domain.BreakerInfo{
			Owner:         owner,
			State:         e.state,
			FailureCount:  e.failures,
			LastFailureAt: e.lastFailureAt,
		})
	}
	return infos
}
