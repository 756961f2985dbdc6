package domain

import "time"

// WorkerState tracks the lifecycle of a worker instance.
type WorkerState string

const (
	WorkerStarting    WorkerState = "starting"
	WorkerReady       WorkerState = "ready"
	WorkerTerminating WorkerState = "terminating"
	WorkerCrashed     WorkerState = "crashed"
)

// WorkerInstance is a live worker process owned by the orchestrator.
// Invariant: at most one instance exists per owner key at any instant.
type WorkerInstance struct {
	Owner       OwnerKey        `json:"ownerKey"`
	ServiceName string          `json:"serviceName"`
	Port        int             `json:"port"`
	PID         int             `json:"pid"`
	StartedAt   time.Time       `json:"startedAt"`
	Context     BusinessContext `json:"businessContext"`
	State       WorkerState     `json:"state"`
	Essential   bool            `json:"essential,omitempty"`
}

// WorkerLaunchSpec is a typed description of how to start a worker process.
// Identity, business context and port travel through the process
// environment, never through generated wrapper scripts.
type WorkerLaunchSpec struct {
	Executable  string
	Args        []string
	ServiceName string
	Context     BusinessContext
	Port        int

	// Env holds additional environment entries beyond the identity keys.
	Env map[string]string
}

// PortReservation records a port held for an owner key.
// The set of reservations is disjoint from the set of free ports.
type PortReservation struct {
	Port       int       `json:"port"`
	Owner      OwnerKey  `json:"ownerKey"`
	ReservedAt time.Time `json:"reservedAt"`
}

// PortStatus is a read-only snapshot of the allocator's bookkeeping.
type PortStatus struct {
	Allocated []PortReservation `json:"allocated"`
	Available int               `json:"available"`
	Pending   []int             `json:"pending"`
}

// OrchestratorStatus is the read-only snapshot exposed by the status
// operation of the core boundary.
type OrchestratorStatus struct {
	Ports   PortStatus       `json:"ports"`
	Workers []WorkerInstance `json:"services"`
}
