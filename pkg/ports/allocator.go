package ports

import (
	"context"

	"github.com/bizobs/journeysim/pkg/domain"
)

// PortAllocator owns the port-reservation table for a configured range.
type PortAllocator interface {
	// Allocate reserves a verified-free port for the owner key.
	// Idempotent: a key that already holds a port gets it back without a
	// new bind test. Fails with domain.ErrPortsExhausted when the range
	// is exhausted even after a stale-reservation sweep.
	Allocate(ctx context.Context, owner domain.OwnerKey) (int, error)

	// Release frees a reservation. It reports whether the port was
	// actually held by the given owner.
	Release(port int, owner domain.OwnerKey) bool

	// Status returns a read-only snapshot of the reservation table.
	Status() domain.PortStatus
}
