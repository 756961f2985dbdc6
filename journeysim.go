package journeysim

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bizobs/journeysim/internal/breaker"
	"github.com/bizobs/journeysim/internal/call"
	"github.com/bizobs/journeysim/internal/control"
	"github.com/bizobs/journeysim/internal/orchestrator"
	"github.com/bizobs/journeysim/internal/portalloc"
	"github.com/bizobs/journeysim/pkg/adapters/process"
	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/bizobs/journeysim/pkg/journey"
	"github.com/bizobs/journeysim/pkg/observability"
	"github.com/bizobs/journeysim/pkg/ports"
	"github.com/bizobs/journeysim/pkg/trace"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is the library version reported by the CLI and the control API.
var Version = "0.3.0"

// Core is the high-level entry point for the journeysim library.
// It wires the orchestration components together and provides the boundary
// consumed by journey and demo collaborators.
type Core struct {
	alloc    *portalloc.Allocator
	breaker  *breaker.Breaker
	tracer   *trace.Builder
	spawner  ports.Spawner
	orch     *orchestrator.Orchestrator
	client   *call.Client
	runner   *journey.Runner
	store    ports.RecordStore
	registry *prometheus.Registry
	logger   *slog.Logger

	// deferred option state
	minPort, maxPort  int
	callTimeout       time.Duration
	breakerThreshold  int
	breakerCooldown   time.Duration
	healthBudget      time.Duration
	thinkTime         time.Duration
	workerExecutable  string
	workerArgs        []string
	workerEnv         map[string]string
	hooks             domain.LifecycleHooks
	metricsEnabled    bool
	customSpawner     ports.Spawner
	allocatorBindTest portalloc.BindTester
}

// Option defines a functional option for configuring the Core.
type Option func(*Core)

// WithLogger sets a custom structured logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// WithPortRange overrides the allocator's port range (default 8081-8120).
func WithPortRange(min, max int) Option {
	return func(c *Core) {
		c.minPort = min
		c.maxPort = max
	}
}

// WithCallTimeout overrides the per-call timeout (default 15s).
func WithCallTimeout(d time.Duration) Option {
	return func(c *Core) { c.callTimeout = d }
}

// WithBreaker overrides the circuit breaker tuning (default 5 failures,
// 10s cooldown).
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Core) {
		c.breakerThreshold = threshold
		c.breakerCooldown = cooldown
	}
}

// WithHealthBudget overrides the worker readiness budget (default 5s).
func WithHealthBudget(d time.Duration) Option {
	return func(c *Core) { c.healthBudget = d }
}

// WithThinkTime overrides the pause between journey steps.
func WithThinkTime(d time.Duration) Option {
	return func(c *Core) { c.thinkTime = d }
}

// WithWorkerCommand sets the executable and arguments used to launch
// worker processes.
func WithWorkerCommand(executable string, args ...string) Option {
	return func(c *Core) {
		c.workerExecutable = executable
		c.workerArgs = args
	}
}

// WithWorkerEnv adds environment entries to every worker launch.
func WithWorkerEnv(env map[string]string) Option {
	return func(c *Core) { c.workerEnv = env }
}

// WithSpawner injects a custom spawner, bypassing OS process launching.
// Used by tests to run workers in-process.
func WithSpawner(s ports.Spawner) Option {
	return func(c *Core) { c.customSpawner = s }
}

// WithRecordStore persists finished journey runs to the given store.
func WithRecordStore(store ports.RecordStore) Option {
	return func(c *Core) { c.store = store }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Core) { c.hooks = hooks }
}

// WithMetrics enables the built-in Prometheus collectors, exposed on the
// control plane's /metrics endpoint.
func WithMetrics() Option {
	return func(c *Core) { c.metricsEnabled = true }
}

// WithBindTester overrides the allocator's availability check (tests).
func WithBindTester(bt portalloc.BindTester) Option {
	return func(c *Core) { c.allocatorBindTest = bt }
}

// New initializes the orchestration core with the documented defaults.
func New(opts ...Option) (*Core, error) {
	c := &Core{
		logger:           slog.Default(),
		minPort:          portalloc.DefaultMinPort,
		maxPort:          portalloc.DefaultMaxPort,
		callTimeout:      call.DefaultTimeout,
		breakerThreshold: breaker.DefaultThreshold,
		breakerCooldown:  breaker.DefaultCooldown,
		healthBudget:     orchestrator.DefaultHealthBudget,
		thinkTime:        100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	hooks := c.hooks
	if c.metricsEnabled {
		c.registry = prometheus.NewRegistry()
		metrics := observability.NewMetrics(c.registry)
		hooks = observability.MergeHooks(hooks, metrics.Hooks())
	}

	allocOpts := []portalloc.Option{
		portalloc.WithRange(c.minPort, c.maxPort),
		portalloc.WithLogger(c.logger),
	}
	if c.allocatorBindTest != nil {
		allocOpts = append(allocOpts, portalloc.WithBindTester(c.allocatorBindTest))
	}
	c.alloc = portalloc.New(allocOpts...)

	c.breaker = breaker.New(
		breaker.WithThreshold(c.breakerThreshold),
		breaker.WithCooldown(c.breakerCooldown),
		breaker.WithLogger(c.logger),
	)
	c.tracer = trace.New()

	c.spawner = c.customSpawner
	if c.spawner == nil {
		c.spawner = process.New()
	}

	c.orch = orchestrator.New(c.alloc, c.spawner,
		orchestrator.WithWorkerCommand(c.workerExecutable, c.workerArgs...),
		orchestrator.WithExtraEnv(c.workerEnv),
		orchestrator.WithHealthBudget(c.healthBudget),
		orchestrator.WithLogger(c.logger),
		orchestrator.WithHooks(hooks),
	)

	c.client = call.New(c.breaker, c.tracer,
		call.WithTimeout(c.callTimeout),
		call.WithLogger(c.logger),
		call.WithHooks(hooks),
	)

	runnerOpts := []journey.RunnerOption{
		journey.WithThinkTime(c.thinkTime),
		journey.WithLogger(c.logger),
	}
	if c.store != nil {
		runnerOpts = append(runnerOpts, journey.WithRecordStore(c.store))
	}
	c.runner = journey.NewRunner(c.orch, c.client, c.tracer, runnerOpts...)

	return c, nil
}

// EnsureRunning resolves a step descriptor to a ready worker port.
func (c *Core) EnsureRunning(ctx context.Context, step domain.StepDescriptor) (int, error) {
	return c.orch.EnsureRunning(ctx, step)
}

// Call issues a chained call against a resolved worker.
func (c *Core) Call(ctx context.Context, owner domain.OwnerKey, port int, payload map[string]any, headers http.Header) domain.CallResult {
	return c.client.Call(ctx, owner, port, payload, headers)
}

// RunJourney drives a whole journey through the core.
func (c *Core) RunJourney(ctx context.Context, j journey.Journey) (*domain.RunRecord, error) {
	return c.runner.Run(ctx, j)
}

// Status returns a read-only snapshot of ports and workers.
func (c *Core) Status() domain.OrchestratorStatus {
	return c.orch.Status()
}

// Worker returns the live instance for an owner key, or
// domain.ErrWorkerNotFound.
func (c *Core) Worker(owner domain.OwnerKey) (domain.WorkerInstance, error) {
	return c.orch.Worker(owner)
}

// Breakers returns a read-only snapshot of the circuit breaker table.
func (c *Core) Breakers() []domain.BreakerInfo {
	return c.breaker.Snapshot()
}

// StopAll terminates every worker and releases their ports.
func (c *Core) StopAll() {
	c.orch.StopAll()
}

// StopNonEssential terminates workers whose service name is not preserved.
// Workers flagged essential by their step settings always survive.
func (c *Core) StopNonEssential(preserve []string) {
	c.orch.StopNonEssential(preserve)
}

// Handler returns the control-plane HTTP surface for this core.
func (c *Core) Handler() http.Handler {
	opts := []control.Option{control.WithLogger(c.logger)}
	if c.store != nil {
		opts = append(opts, control.WithRecordStore(c.store))
	}
	if c.registry != nil {
		opts = append(opts, control.WithGatherer(c.registry))
	}
	return control.NewServer(c, opts...).Handler()
}
