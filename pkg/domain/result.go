package domain

import "time"

// Call statuses. A CallResult is never partially mutated after creation.
const (
	CallCompleted = "completed"
	CallFailed    = "failed"
)

// Error kinds carried by failed call results. Call-time failures are always
// resolved into a CallResult, never returned as Go errors.
const (
	ErrorKindCircuitOpen = "circuit_open"
	ErrorKindConnection  = "connection_error"
	ErrorKindTimeout     = "timeout_error"
	ErrorKindHTMLBody    = "html_error_response"
	ErrorKindJSONParse   = "json_parse_error"
	ErrorKindWorker      = "worker_error"

	// ErrorKindSpawn is synthesized at the journey level when a worker
	// could not be started for a step, so the chain can keep going.
	ErrorKindSpawn = "spawn_error"
)

// TraceInfo is attached to every call result, success or failure, for
// downstream diagnostics.
type TraceInfo struct {
	RequestTraceparent  string `json:"requestTraceparent,omitempty"`
	ResponseTraceparent string `json:"responseTraceparent,omitempty"`
	CorrelationID       string `json:"correlationId,omitempty"`
}

// CallResult is the structured outcome of a single chained worker call.
type CallResult struct {
	Status     string         `json:"status"`
	HTTPStatus int            `json:"httpStatus"`
	ErrorKind  string         `json:"errorKind,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Trace      TraceInfo      `json:"traceInfo"`
}

// Completed reports whether the call finished successfully.
func (r CallResult) Completed() bool {
	return r.Status == CallCompleted
}

// StepRecord is one entry in a journey run trace. Failed steps are recorded
// alongside completed ones; a journey is not aborted by a single failure.
type StepRecord struct {
	StepName    string        `json:"stepName"`
	ServiceName string        `json:"serviceName"`
	Owner       OwnerKey      `json:"ownerKey"`
	Port        int           `json:"port,omitempty"`
	Result      CallResult    `json:"result"`
	Duration    time.Duration `json:"duration"`
	StartedAt   time.Time     `json:"startedAt"`
}

// RunRecord captures a full journey run for inspection and replay.
type RunRecord struct {
	ID            string          `json:"id"`
	JourneyName   string          `json:"journeyName"`
	Context       BusinessContext `json:"businessContext"`
	CorrelationID string          `json:"correlationId"`
	TraceID       string          `json:"traceId"`
	Steps         []StepRecord    `json:"steps"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   time.Time       `json:"completedAt"`

	// EventType mirrors the summary event emitted by generated load
	// scripts ("JOURNEY_COMPLETE").
	EventType  string `json:"eventType"`
	TotalSteps int    `json:"totalSteps"`
	Failed     int    `json:"failedSteps"`
}
