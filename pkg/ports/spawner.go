package ports

import (
	"context"

	"github.com/bizobs/journeysim/pkg/domain"
)

// WorkerProcess is a handle to a spawned worker.
type WorkerProcess interface {
	// PID returns the OS process id (or a synthetic id for in-process
	// test spawners).
	PID() int

	// Stop terminates the process. Safe to call more than once.
	Stop() error

	// Done is closed when the process has exited, carrying the exit
	// error if any. The orchestrator uses it as its crash hook.
	Done() <-chan error
}

// Spawner starts worker processes from a typed launch spec.
type Spawner interface {
	Spawn(ctx context.Context, spec domain.WorkerLaunchSpec) (WorkerProcess, error)
}
