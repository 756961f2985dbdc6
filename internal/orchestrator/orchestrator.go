// Package orchestrator maps journey steps to canonical worker identities
// and keeps exactly one live worker process per owner key: reusing matching
// instances, restarting on business-context changes, and cleaning up after
// crashes through the process-exit hook.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/bizobs/journeysim/pkg/ports"
)

// Health polling defaults. The budget bounds how long EnsureRunning waits
// for a fresh worker to answer /health before giving up with a SpawnError.
const (
	DefaultHealthBudget = 5 * time.Second
	healthBackoffBase   = 50 * time.Millisecond
	healthBackoffCap    = 500 * time.Millisecond
	healthProbeTimeout  = time.Second
)

type instance struct {
	domain.WorkerInstance
	handle ports.WorkerProcess
}

// starting collapses concurrent EnsureRunning calls for one owner key.
type starting struct {
	done chan struct{}
	port int
	err  error
}

// Orchestrator owns the worker-instance table. All mutation funnels
// through its lock; other components only see snapshots.
type Orchestrator struct {
	mu        sync.Mutex
	alloc     ports.PortAllocator
	spawner   ports.Spawner
	instances map[domain.OwnerKey]*instance
	inflight  map[domain.OwnerKey]*starting

	executable   string
	args         []string
	extraEnv     map[string]string
	healthBudget time.Duration
	health       *http.Client
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithWorkerCommand sets the executable and arguments used to launch
// worker processes (identity still travels via the environment).
func WithWorkerCommand(executable string, args ...string) Option {
	return func(o *Orchestrator) {
		o.executable = executable
		o.args = args
	}
}

// WithExtraEnv adds environment entries to every launch spec.
func WithExtraEnv(env map[string]string) Option {
	return func(o *Orchestrator) { o.extraEnv = env }
}

// WithHealthBudget bounds the readiness wait (default 5s).
func WithHealthBudget(d time.Duration) Option {
	return func(o *Orchestrator) { o.healthBudget = d }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithHooks registers observability callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// New creates an orchestrator over the given allocator and spawner.
func New(alloc ports.PortAllocator, spawner ports.Spawner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		alloc:        alloc,
		spawner:      spawner,
		instances:    make(map[domain.OwnerKey]*instance),
		inflight:     make(map[domain.OwnerKey]*starting),
		healthBudget: DefaultHealthBudget,
		health:       &http.Client{Timeout: healthProbeTimeout},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EnsureRunning resolves the step to a ready worker and returns its port.
//
// A live instance whose business context matches is reused as-is. A context
// mismatch (domain or industry changed) terminates the old instance and
// spawns a fresh one. Failures to start or to become healthy surface as a
// *domain.SpawnError; the just-reserved port is released first.
func (o *Orchestrator) EnsureRunning(ctx context.Context, step domain.StepDescriptor) (int, error) {
	service := step.CanonicalName()
	owner := step.OwnerKeyFor()

	for {
		o.mu.Lock()
		if inst, ok := o.instances[owner]; ok {
			if inst.Context.Matches(step.Context) {
				// An essential step upgrades the instance for good.
				if step.Essential {
					inst.Essential = true
				}
				port := inst.Port
				o.mu.Unlock()
				return port, nil
			}
			// Context changed: terminate and respawn below.
			o.removeLocked(owner, inst, "context_changed")
			o.mu.Unlock()
			inst.handle.Stop()
			continue
		}

		if fl, ok := o.inflight[owner]; ok {
			o.mu.Unlock()
			select {
			case <-fl.done:
				return fl.port, fl.err
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		fl := &starting{done: make(chan struct{})}
		o.inflight[owner] = fl
		o.mu.Unlock()

		port, err := o.start(ctx, owner, service, step)

		o.mu.Lock()
		delete(o.inflight, owner)
		fl.port, fl.err = port, err
		close(fl.done)
		o.mu.Unlock()
		return port, err
	}
}

func (o *Orchestrator) start(ctx context.Context, owner domain.OwnerKey, service string, step domain.StepDescriptor) (int, error) {
	port, err := o.alloc.Allocate(ctx, owner)
	if err != nil {
		return 0, err
	}

	spec := domain.WorkerLaunchSpec{
		Executable:  o.executable,
		Args:        o.args,
		ServiceName: service,
		Context:     step.Context,
		Port:        port,
		Env:         o.extraEnv,
	}

	proc, err := o.spawner.Spawn(ctx, spec)
	if err != nil {
		o.alloc.Release(port, owner)
		return 0, &domain.SpawnError{
			Owner:       owner,
			ServiceName: service,
			Reason:      "process start failed",
			Err:         err,
		}
	}

	inst := &instance{
		WorkerInstance: domain.WorkerInstance{
			Owner:       owner,
			ServiceName: service,
			Port:        port,
			PID:         proc.PID(),
			StartedAt:   time.Now(),
			Context:     step.Context,
			State:       domain.WorkerStarting,
			Essential:   step.Essential,
		},
		handle: proc,
	}
	o.mu.Lock()
	o.instances[owner] = inst
	o.mu.Unlock()
	go o.watchExit(owner, proc)

	// The start event pairs with the stop event from removeLocked, so it
	// fires as soon as the instance is tracked, not when it turns ready.
	if o.hooks.OnWorkerStart != nil {
		o.hooks.OnWorkerStart(ctx, &domain.WorkerEvent{
			Timestamp:   time.Now(),
			Type:        domain.EventWorkerStart,
			Owner:       owner,
			ServiceName: service,
			Port:        port,
			PID:         proc.PID(),
		})
	}
	o.logger.Info("worker starting",
		"owner", owner, "service", service, "port", port, "pid", proc.PID())

	if err := o.waitHealthy(ctx, port); err != nil {
		proc.Stop()
		o.mu.Lock()
		if cur, ok := o.instances[owner]; ok && cur == inst {
			o.removeLocked(owner, inst, "health_timeout")
		}
		o.mu.Unlock()
		return 0, &domain.SpawnError{
			Owner:       owner,
			ServiceName: service,
			Reason:      "worker never became healthy",
			Err:         err,
		}
	}

	o.mu.Lock()
	inst.State = domain.WorkerReady
	o.mu.Unlock()

	o.logger.Info("worker ready", "owner", owner, "port", port)
	return port, nil
}

// waitHealthy polls GET /health with increasing backoff until the worker
// answers 200 or the health budget runs out.
func (o *Orchestrator) waitHealthy(ctx context.Context, port int) error {
	deadline := time.Now().Add(o.healthBudget)
	backoff := healthBackoffBase
	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := o.health.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("health check at %s: %w", url, err)
			}
			return fmt.Errorf("health check at %s: status %d", url, resp.StatusCode)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < healthBackoffCap {
			backoff *= 2
		}
	}
}

// watchExit is the crash hook: when the process exits for any reason, the
// instance is dropped and its port released, without an active
// orchestrator action.
func (o *Orchestrator) watchExit(owner domain.OwnerKey, proc ports.WorkerProcess) {
	err := <-proc.Done()

	o.mu.Lock()
	defer o.mu.Unlock()
	cur, ok := o.instances[owner]
	if !ok || cur.handle != proc {
		// Already replaced or deliberately removed.
		return
	}
	if cur.State == domain.WorkerReady {
		o.logger.Warn("worker crashed", "owner", owner, "port", cur.Port, "err", err)
		cur.State = domain.WorkerCrashed
	}
	o.removeLocked(owner, cur, "crashed")
}

// removeLocked drops an instance and releases its port. Caller holds o.mu.
func (o *Orchestrator) removeLocked(owner domain.OwnerKey, inst *instance, reason string) {
	if inst.State != domain.WorkerCrashed {
		inst.State = domain.WorkerTerminating
	}
	delete(o.instances, owner)
	o.alloc.Release(inst.Port, owner)

	if o.hooks.OnWorkerStop != nil {
		o.hooks.OnWorkerStop(context.Background(), &domain.WorkerEvent{
			Timestamp:   time.Now(),
			Type:        domain.EventWorkerStop,
			Owner:       owner,
			ServiceName: inst.ServiceName,
			Port:        inst.Port,
			PID:         inst.PID,
			Reason:      reason,
		})
	}
	o.logger.Info("worker removed", "owner", owner, "port", inst.Port, "reason", reason)
}

// StopAll terminates every worker and releases their ports.
func (o *Orchestrator) StopAll() {
	o.stopMatching(func(domain.WorkerInstance) bool { return true }, "stop_all")
}

// StopNonEssential terminates every worker whose service name is not in
// the preserve list. Workers flagged essential by their step settings
// survive regardless of the list.
func (o *Orchestrator) StopNonEssential(preserve []string) {
	keep := make(map[string]struct{}, len(preserve))
	for _, name := range preserve {
		keep[name] = struct{}{}
	}
	o.stopMatching(func(w domain.WorkerInstance) bool {
		if w.Essential {
			return false
		}
		_, ok := keep[w.ServiceName]
		return !ok
	}, "stop_non_essential")
}

func (o *Orchestrator) stopMatching(match func(domain.WorkerInstance) bool, reason string) {
	o.mu.Lock()
	var victims []*instance
	for owner, inst := range o.instances {
		if match(inst.WorkerInstance) {
			victims = append(victims, inst)
			o.removeLocked(owner, inst, reason)
		}
	}
	o.mu.Unlock()

	for _, inst := range victims {
		inst.handle.Stop()
	}
}

// Worker returns the live instance for an owner key, or ErrWorkerNotFound.
func (o *Orchestrator) Worker(owner domain.OwnerKey) (domain.WorkerInstance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	inst, ok := o.instances[owner]
	if !ok {
		return domain.WorkerInstance{}, fmt.Errorf("%w: %s", domain.ErrWorkerNotFound, owner)
	}
	return inst.WorkerInstance, nil
}

// Status returns a read-only snapshot of ports and workers.
func (o *Orchestrator) Status() domain.OrchestratorStatus {
	o.mu.Lock()
	workers := make([]domain.WorkerInstance, 0, len(o.instances))
	for _, inst := range o.instances {
		workers = append(workers, inst.WorkerInstance)
	}
	o.mu.Unlock()

	sort.Slice(workers, func(i, j int) bool { return workers[i].Owner < workers[j].Owner })
	return domain.OrchestratorStatus{
		Ports:   o.alloc.Status(),
		Workers: workers,
	}
}
