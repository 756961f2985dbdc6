package ports

import (
	"context"

	"github.com/bizobs/journeysim/pkg/domain"
)

// RecordStore persists finished journey run records for inspection.
// Orchestration state itself (ports, workers, breakers) is deliberately
// in-memory only; the store holds nothing the core needs to operate.
type RecordStore interface {
	// Save persists a run record under its ID.
	Save(ctx context.Context, rec *domain.RunRecord) error

	// Load retrieves a run record by ID.
	// Returns domain.ErrRecordNotFound if it does not exist.
	Load(ctx context.Context, id string) (*domain.RunRecord, error)

	// List returns the known record IDs.
	List(ctx context.Context) ([]string, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error
}
