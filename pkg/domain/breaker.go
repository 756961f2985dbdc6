package domain

import "time"

// CircuitState is the gate position of a per-worker circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// BreakerInfo is a read-only snapshot of one breaker entry.
type BreakerInfo struct {
	Owner         OwnerKey     `json:"ownerKey"`
	State         CircuitState `json:"state"`
	FailureCount  int          `json:"failureCount"`
	LastFailureAt time.Time    `json:"lastFailureAt,omitempty"`
}
