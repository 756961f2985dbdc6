package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventWorkerStart EventType = "worker_start"
	EventWorkerStop  EventType = "worker_stop"
	EventStepCall    EventType = "step_call"
	EventStepReturn  EventType = "step_return"
)

// WorkerEvent describes a worker process starting or stopping.
type WorkerEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	Owner       OwnerKey  `json:"ownerKey"`
	ServiceName string    `json:"serviceName"`
	Port        int       `json:"port"`
	PID         int       `json:"pid,omitempty"`
	Reason      string    `json:"reason,omitempty"` // stop events: "context_changed", "crashed", "stop_all", ...
}

// CallEvent describes an outbound worker call and its outcome.
type CallEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	Type       EventType     `json:"type"`
	Owner      OwnerKey      `json:"ownerKey"`
	StepName   string        `json:"stepName"`
	Outcome    string        `json:"outcome,omitempty"` // completed or an error kind
	HTTPStatus int           `json:"httpStatus,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for orchestration observability.
// All hooks are optional and must not block.
type LifecycleHooks struct {
	OnWorkerStart func(context.Context, *WorkerEvent)
	OnWorkerStop  func(context.Context, *WorkerEvent)
	OnStepCall    func(context.Context, *CallEvent)
	OnStepReturn  func(context.Context, *CallEvent)
}
