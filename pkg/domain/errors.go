package domain

import (
	"errors"
	"fmt"
)

// ErrPortsExhausted is returned when the configured port range has no free
// port left, even after a stale-reservation sweep. It must never be
// swallowed silently.
var ErrPortsExhausted = errors.New("no ports available in configured range")

// ErrWorkerNotFound is returned when an operation references an owner key
// with no live worker instance.
var ErrWorkerNotFound = errors.New("worker not found")

// ErrRecordNotFound is returned when a journey run record cannot be found
// in the record store.
var ErrRecordNotFound = errors.New("run record not found")

// SpawnError reports that a worker process could not be started or never
// became healthy within the health budget. Unlike call-time failures, it
// propagates as a real error: no safe fallback port exists.
type SpawnError struct {
	Owner       OwnerKey
	ServiceName string
	Reason      string
	Err         error
}

func (e *SpawnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spawn %s (%s): %s: %v", e.ServiceName, e.Owner, e.Reason, e.Err)
	}
	return fmt.Sprintf("spawn %s (%s): %s", e.ServiceName, e.Owner, e.Reason)
}

func (e *SpawnError) Unwrap() error { return e.Err }
