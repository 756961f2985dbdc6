package journey

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/bizobs/journeysim/pkg/ports"
	"github.com/bizobs/journeysim/pkg/trace"
)

// EventJourneyComplete is the summary event type recorded at the end of a
// run, mirroring the JOURNEY_COMPLETE event of generated load scripts.
const EventJourneyComplete = "JOURNEY_COMPLETE"

// Ensurer resolves a step to a ready worker port. Satisfied by the
// orchestrator.
type Ensurer interface {
	EnsureRunning(ctx context.Context, step domain.StepDescriptor) (int, error)
}

// Runner drives journeys through the orchestration core, one step at a
// time. Failed steps are recorded alongside completed ones; the chain only
// stops early when the context is cancelled.
type Runner struct {
	ensurer   Ensurer
	caller    ports.Caller
	tracer    *trace.Builder
	store     ports.RecordStore
	thinkTime time.Duration
	logger    *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithThinkTime sets the default pause between steps.
func WithThinkTime(d time.Duration) RunnerOption {
	return func(r *Runner) { r.thinkTime = d }
}

// WithRecordStore persists finished run records to the given store.
func WithRecordStore(store ports.RecordStore) RunnerOption {
	return func(r *Runner) { r.store = store }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a journey runner on top of the orchestration core.
func NewRunner(ensurer Ensurer, caller ports.Caller, tracer *trace.Builder, opts ...RunnerOption) *Runner {
	r := &Runner{
		ensurer:   ensurer,
		caller:    caller,
		tracer:    tracer,
		thinkTime: 100 * time.Millisecond,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every step of the journey in order and returns the full run
// record. The returned error is non-nil only for definition problems or a
// cancelled context; step-level failures live inside the record.
func (r *Runner) Run(ctx context.Context, j Journey) (*domain.RunRecord, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}

	correlation := trace.NewCorrelationID()
	tc := r.tracer.Build("")

	rec := &domain.RunRecord{
		ID:            correlation,
		JourneyName:   j.Name,
		Context:       j.Context(),
		CorrelationID: correlation,
		TraceID:       tc.TraceID,
		StartedAt:     time.Now(),
		EventType:     EventJourneyComplete,
		TotalSteps:    len(j.Steps),
	}

	r.logger.Info("journey started",
		"journey", j.Name,
		"company", j.Company,
		"steps", len(j.Steps),
		"trace_id", tc.TraceID,
	)

	think := r.thinkTime
	if j.ThinkTime > 0 {
		think = j.ThinkTime.Std()
	}

	for i, step := range j.Steps {
		if err := ctx.Err(); err != nil {
			return rec, err
		}

		sr := r.runStep(ctx, j, step, i, tc, correlation)
		rec.Steps = append(rec.Steps, sr)
		if !sr.Result.Completed() {
			rec.Failed++
		}

		// Each hop regenerates the span id; the prior span becomes the
		// parent of the next step's context.
		tc = r.tracer.NextHop(tc)

		if think > 0 && i < len(j.Steps)-1 {
			select {
			case <-ctx.Done():
				return rec, ctx.Err()
			case <-time.After(think):
			}
		}
	}

	rec.CompletedAt = time.Now()
	r.logger.Info("journey complete",
		"journey", j.Name,
		"steps", rec.TotalSteps,
		"failed", rec.Failed,
		"correlation_id", correlation,
	)

	if r.store != nil {
		if err := r.store.Save(ctx, rec); err != nil {
			// Record persistence is best-effort observability; a dead
			// sink must not fail the journey.
			r.logger.Warn("failed to save run record", "journey", j.Name, "err", err)
		}
	}
	return rec, nil
}

func (r *Runner) runStep(ctx context.Context, j Journey, step Step, index int, tc trace.Context, correlation string) domain.StepRecord {
	desc := j.Descriptor(step)
	started := time.Now()

	sr := domain.StepRecord{
		StepName:    step.Name,
		ServiceName: desc.CanonicalName(),
		Owner:       desc.OwnerKeyFor(),
		StartedAt:   started,
	}

	port, err := r.ensurer.EnsureRunning(ctx, desc)
	if err != nil {
		// No safe fallback port exists, so no call is attempted; the
		// step is recorded as failed and the chain keeps going.
		r.logger.Error("worker spawn failed", "journey", j.Name, "step", step.Name, "err", err)
		sr.Result = domain.CallResult{
			Status:     domain.CallFailed,
			HTTPStatus: http.StatusServiceUnavailable,
			ErrorKind:  domain.ErrorKindSpawn,
			Trace:      domain.TraceInfo{CorrelationID: correlation},
		}
		sr.Duration = time.Since(started)
		return sr
	}
	sr.Port = port

	headers := http.Header{}
	headers.Set(trace.HeaderTraceparent, tc.Header())
	headers.Set("x-correlation-id", correlation)

	payload := r.payloadFor(j, step, index)
	sr.Result = r.caller.Call(ctx, sr.Owner, port, payload, headers)
	sr.Duration = time.Since(started)
	return sr
}

// payloadFor builds the step payload. The full ordered position travels
// with it for observability, but workers never act on it: chaining is
// always driven from this runner.
func (r *Runner) payloadFor(j Journey, step Step, index int) map[string]any {
	payload := map[string]any{
		"companyName":     j.Company,
		"domain":          j.Domain,
		"industry":        j.Industry,
		"stepName":        step.Name,
		"stepIndex":       index,
		"totalSteps":      len(j.Steps),
		"errorSimulation": j.ErrorSimulation,
	}
	// Metadata already passed validation with the journey.
	if set, _ := step.Settings(); set.ErrorRate > 0 {
		payload["errorRate"] = set.ErrorRate
	}
	if len(step.Substeps) > 0 {
		subs := make([]map[string]any, 0, len(step.Substeps))
		for _, s := range step.Substeps {
			subs = append(subs, map[string]any{
				"substepName": s.Name,
				"duration":    s.Duration,
			})
		}
		payload["substeps"] = subs
	}
	return payload
}
