// Package portalloc owns the port-reservation table for worker processes.
// It hands out ports from a configured range, verifying each candidate with
// a real bind test so OS-level state always wins over internal bookkeeping.
package portalloc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/bizobs/journeysim/pkg/domain"
)

// Default port range, matching the documented configuration surface.
const (
	DefaultMinPort = 8081
	DefaultMaxPort = 8120
)

// BindTester verifies OS-level availability of a port.
// The default implementation binds and immediately closes a TCP listener.
type BindTester func(port int) bool

func defaultBindTester(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

type reservation struct {
	owner      domain.OwnerKey
	reservedAt time.Time
}

// inflight collapses concurrent Allocate calls for one owner key into a
// single allocation; all waiters receive the same port.
type inflight struct {
	done chan struct{}
	port int
	err  error
}

// Allocator implements ports.PortAllocator.
type Allocator struct {
	mu           sync.Mutex
	min, max     int
	reservations map[int]reservation
	byOwner      map[domain.OwnerKey]int
	pending      map[int]struct{}
	starting     map[domain.OwnerKey]*inflight
	bind         BindTester
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures the allocator.
type Option func(*Allocator)

// WithRange overrides the port range (inclusive).
func WithRange(min, max int) Option {
	return func(a *Allocator) {
		a.min = min
		a.max = max
	}
}

// WithBindTester overrides the availability check (tests).
func WithBindTester(bt BindTester) Option {
	return func(a *Allocator) { a.bind = bt }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) { a.logger = logger }
}

// New creates an allocator over the default range 8081-8120.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		min:          DefaultMinPort,
		max:          DefaultMaxPort,
		reservations: make(map[int]reservation),
		byOwner:      make(map[domain.OwnerKey]int),
		pending:      make(map[int]struct{}),
		starting:     make(map[domain.OwnerKey]*inflight),
		bind:         defaultBindTester,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate reserves a verified-free port for the owner key.
//
// Allocation for the same key is serialized through an in-flight future:
// concurrent callers collapse into one scan and one bind test, and all of
// them receive the identical port. Different keys scan in parallel; a
// candidate port is held in the pending set while its own bind test runs so
// a second key cannot race onto it.
func (a *Allocator) Allocate(ctx context.Context, owner domain.OwnerKey) (int, error) {
	a.mu.Lock()

	// Idempotency: an existing reservation short-circuits, no bind test.
	if port, ok := a.byOwner[owner]; ok {
		a.mu.Unlock()
		return port, nil
	}

	if fl, ok := a.starting[owner]; ok {
		a.mu.Unlock()
		select {
		case <-fl.done:
			return fl.port, fl.err
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	fl := &inflight{done: make(chan struct{})}
	a.starting[owner] = fl
	a.mu.Unlock()

	port, err := a.scan(owner)

	a.mu.Lock()
	if err == nil {
		a.reservations[port] = reservation{owner: owner, reservedAt: a.now()}
		a.byOwner[owner] = port
	}
	delete(a.starting, owner)
	fl.port, fl.err = port, err
	close(fl.done)
	a.mu.Unlock()

	if err == nil {
		a.logger.Debug("port allocated", "owner", owner, "port", port)
	}
	return port, err
}

// scan walks the range once; on exhaustion it runs a single
// stale-reservation sweep and retries once before giving up.
func (a *Allocator) scan(owner domain.OwnerKey) (int, error) {
	if port, ok := a.pass(); ok {
		return port, nil
	}

	a.logger.Warn("port range exhausted, sweeping stale reservations",
		"owner", owner, "min", a.min, "max", a.max)
	a.sweep()

	if port, ok := a.pass(); ok {
		return port, nil
	}
	return 0, fmt.Errorf("allocate for %s: %w", owner, domain.ErrPortsExhausted)
}

// pass scans the range in order and returns the first candidate that
// survives a bind test. Ports that fail the test while our books call them
// free are recorded as externally allocated rather than retried blindly.
func (a *Allocator) pass() (int, bool) {
	for port := a.min; port <= a.max; port++ {
		a.mu.Lock()
		if _, reserved := a.reservations[port]; reserved {
			a.mu.Unlock()
			continue
		}
		if _, busy := a.pending[port]; busy {
			a.mu.Unlock()
			continue
		}
		a.pending[port] = struct{}{}
		a.mu.Unlock()

		free := a.bind(port)

		a.mu.Lock()
		delete(a.pending, port)
		if free {
			a.mu.Unlock()
			return port, true
		}
		// Something outside this process holds the port.
		a.reservations[port] = reservation{owner: domain.ExternalOwner, reservedAt: a.now()}
		a.mu.Unlock()
		a.logger.Debug("port externally allocated", "port", port)
	}
	return 0, false
}

// sweep re-verifies every reservation with a bind test and releases the
// ones that are actually free (stale bookkeeping drift).
func (a *Allocator) sweep() {
	a.mu.Lock()
	ports := make([]int, 0, len(a.reservations))
	for port := range a.reservations {
		ports = append(ports, port)
	}
	a.mu.Unlock()

	for _, port := range ports {
		if !a.bind(port) {
			continue // still genuinely in use
		}
		a.mu.Lock()
		if res, ok := a.reservations[port]; ok {
			delete(a.reservations, port)
			delete(a.byOwner, res.owner)
			a.logger.Info("released stale reservation", "port", port, "owner", res.owner)
		}
		a.mu.Unlock()
	}
}

// Release frees a reservation held by the given owner.
func (a *Allocator) Release(port int, owner domain.OwnerKey) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := a.reservations[port]
	if !ok || res.owner != owner {
		return false
	}
	delete(a.reservations, port)
	delete(a.byOwner, owner)
	a.logger.Debug("port released", "owner", owner, "port", port)
	return true
}

// Status returns a read-only snapshot of the reservation table.
func (a *Allocator) Status() domain.PortStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	allocated := make([]domain.PortReservation, 0, len(a.reservations))
	for port, res := range a.reservations {
		allocated = append(allocated, domain.PortReservation{
			Port:       port,
			Owner:      res.owner,
			ReservedAt: res.reservedAt,
		})
	}
	sort.Slice(allocated, func(i, j int) bool { return allocated[i].Port < allocated[j].Port })

	pending := make([]int, 0, len(a.pending))
	for port := range a.pending {
		pending = append(pending, port)
	}
	sort.Ints(pending)

	total := a.max - a.min + 1
	return domain.PortStatus{
		Allocated: allocated,
		Available: total - len(a.reservations) - len(a.pending),
		Pending:   pending,
	}
}
