// Package process implements the Spawner port using local OS processes.
//
// Worker identity, business context and port are passed through the process
// environment (JOURNEYSIM_* keys), never through generated wrapper scripts
// or command-line parsing. This keeps the launch surface typed and prevents
// flag injection from journey-supplied values.
package process

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/bizobs/journeysim/pkg/ports"
)

// Environment keys read by the worker process at startup.
const (
	EnvServiceName = "JOURNEYSIM_SERVICE_NAME"
	EnvCompany     = "JOURNEYSIM_COMPANY"
	EnvDomain      = "JOURNEYSIM_DOMAIN"
	EnvIndustry    = "JOURNEYSIM_INDUSTRY"
	EnvPort        = "JOURNEYSIM_PORT"
)

// stopGrace is how long a worker gets to exit after SIGKILL is issued.
const stopGrace = 2 * time.Second

// Spawner starts worker processes with exec.
type Spawner struct {
	baseDir string
}

// Option configures the spawner.
type Option func(*Spawner)

// WithBaseDir sets the working directory for spawned workers.
func WithBaseDir(dir string) Option {
	return func(s *Spawner) { s.baseDir = dir }
}

// New creates a process spawner.
func New(opts ...Option) *Spawner {
	s := &Spawner{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts the worker described by spec and returns a handle whose Done
// channel closes when the process exits. The context bounds only the start,
// not the worker's lifetime: workers outlive the EnsureRunning call that
// created them.
func (s *Spawner) Spawn(ctx context.Context, spec domain.WorkerLaunchSpec) (ports.WorkerProcess, error) {
	if spec.Executable == "" {
		return nil, fmt.Errorf("launch spec has no executable")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = s.baseDir

	env := cmd.Environ()
	env = append(env,
		EnvServiceName+"="+spec.ServiceName,
		EnvCompany+"="+spec.Context.Company,
		EnvDomain+"="+spec.Context.Domain,
		EnvIndustry+"="+spec.Context.Industry,
		EnvPort+"="+strconv.Itoa(spec.Port),
	)
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", spec.ServiceName, err)
	}

	h := &handle{
		cmd:  cmd,
		done: make(chan error, 1),
	}
	go func() {
		err := cmd.Wait()
		h.done <- err
		close(h.done)
	}()
	return h, nil
}

type handle struct {
	cmd      *exec.Cmd
	done     chan error
	stopOnce sync.Once
	stopErr  error
}

func (h *handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stop kills the worker process. Safe to call more than once; callers that
// already observed Done get a no-op.
func (h *handle) Stop() error {
	h.stopOnce.Do(func() {
		if h.cmd.Process == nil {
			return
		}
		h.stopErr = h.cmd.Process.Kill()
		select {
		case <-h.done:
		case <-time.After(stopGrace):
		}
	})
	return h.stopErr
}

func (h *handle) Done() <-chan error { return h.done }
