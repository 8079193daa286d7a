package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/seantiz/reaper/internal/backend"
	"github.com/seantiz/reaper/internal/backend/ctr"
	"github.com/seantiz/reaper/internal/backend/firecracker"
	"github.com/seantiz/reaper/internal/killplan"
	"github.com/seantiz/reaper/internal/model"
)

// Runner executes backend commands. *runner.Executor implements it.
type Runner interface {
	Run(ctx context.Context, spec backend.CommandSpec) backend.ExecResult
}

// FirecrackerManager stops and cleans up Firecracker VMs on the process
// path. *firecracker.Manager implements it.
type FirecrackerManager interface {
	SoftStop(ctx context.Context, m firecracker.Machine) error
	Cleanup(ctx context.Context, m firecracker.Machine) error
}

// Dispatcher routes a job to the driver for its backend.
type Dispatcher struct {
	Registry *backend.Registry

	// CtrDefaults is the firecracker-ctr endpoint used when a job carries
	// no ctr block of its own.
	CtrDefaults ctr.Config

	// Firecracker is optional; without it firecracker VMs are only signalled.
	Firecracker FirecrackerManager

	Signaler killplan.ProcessSignaler
	Runner   Runner
	Logger   *slog.Logger

	// OpTimeout overrides the per-command timeout when positive.
	OpTimeout time.Duration
}

// Plan derives the kill plan for job with the dispatcher's overrides.
func (d *Dispatcher) Plan(job *model.Job) killplan.Plan {
	p := killplan.FromJob(job)
	if d.OpTimeout > 0 {
		p.OpTimeout = d.OpTimeout
	}
	return p
}

// Enforce runs plan against job's workload until done reports true or the
// plan reaches a terminal result. obs may be nil. An error means the job
// could not be dispatched at all; no command was run.
func (d *Dispatcher) Enforce(ctx context.Context, job *model.Job, plan killplan.Plan, done killplan.DoneFunc, obs Observer) (killplan.Result, error) {
	if obs == nil {
		obs = func(Step) {}
	}

	logger := d.Logger.With("backend", string(job.Backend), "run_id", job.RunID)
	logger.Info("enforcing kill plan",
		"target", job.ContainerID,
		"soft_at", plan.SoftAt,
		"hard_at", plan.HardAt,
		"cleanup_deadline", plan.CleanupDeadline,
	)

	var result killplan.Result
	if job.Backend.PIDBased() {
		result = killplan.EnforcePID(plan, d.pidTarget(ctx, job, plan, obs), done)
	} else {
		b, err := d.resolve(job)
		if err != nil {
			return 0, err
		}
		run := func(c backend.CommandSpec) backend.ExecResult {
			res := d.Runner.Run(ctx, c)
			obs(commandStep(c, res))
			return res
		}
		result = killplan.Enforce(plan, b, run, done)
	}

	logger.Info("kill plan finished", "result", result.String())
	return result, nil
}

// resolve picks the capability set for a command-driven job. A
// firecracker-ctr job with its own ctr block gets a dedicated backend.
func (d *Dispatcher) resolve(job *model.Job) (backend.Backend, error) {
	if job.Backend == model.BackendFirecrackerCtr && job.Ctr != nil {
		cfg, err := ctrConfig(d.CtrDefaults, job.Ctr)
		if err != nil {
			return nil, err
		}
		return ctr.New(cfg), nil
	}
	return d.Registry.Resolve(string(job.Backend))
}

func ctrConfig(defaults ctr.Config, override *model.CtrJob) (ctr.Config, error) {
	cfg := defaults
	if override.Bin != "" {
		bin, err := backend.ParseBinary(override.Bin)
		if err != nil {
			return ctr.Config{}, fmt.Errorf("ctr bin: %w", err)
		}
		cfg.Bin = bin
	}
	if override.Address != "" {
		cfg.Address = override.Address
	}
	if override.Namespace != "" {
		cfg.Namespace = override.Namespace
	}
	return cfg, nil
}

func (d *Dispatcher) pidTarget(ctx context.Context, job *model.Job, plan killplan.Plan, obs Observer) killplan.PIDTarget {
	target := killplan.PIDTarget{
		Signaler: observedSignaler{inner: d.Signaler, obs: obs},
	}
	if job.PID != nil {
		target.PID = *job.PID
	}

	switch job.Backend {
	case model.BackendVZ:
		target.Cleanup = func() {
			if err := removeScratch(job.StateDir); err != nil {
				obs(Step{Phase: backend.PhaseCleanup, Command: "remove " + VZScratchName, Err: err})
			}
		}
	case model.BackendFirecrackerVMM:
		if d.Firecracker == nil {
			break
		}
		m := firecracker.MachineFromJob(job)
		if m.SocketPath != "" {
			target.SoftStop = func() {
				hctx, cancel := hookContext(ctx, plan)
				defer cancel()
				err := d.Firecracker.SoftStop(hctx, m)
				obs(Step{Phase: backend.PhaseSoft, Command: "ctrl-alt-del " + m.SocketPath, Err: err})
			}
		}
		target.Cleanup = func() {
			hctx, cancel := hookContext(ctx, plan)
			defer cancel()
			if err := d.Firecracker.Cleanup(hctx, m); err != nil {
				obs(Step{Phase: backend.PhaseCleanup, Command: "teardown " + m.ID, Err: err})
			}
		}
	}
	return target
}

// hookContext bounds one VMM hook by the op timeout and by what is left
// before the cleanup deadline.
func hookContext(ctx context.Context, plan killplan.Plan) (context.Context, context.CancelFunc) {
	timeout := min(plan.OpTimeout, time.Until(plan.CleanupDeadline))
	return context.WithTimeout(ctx, max(timeout, time.Millisecond))
}

// removeScratch deletes the VM's copy-on-write disk. Missing is fine.
func removeScratch(stateDir string) error {
	if stateDir == "" {
		return nil
	}
	err := os.Remove(filepath.Join(stateDir, VZScratchName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// observedSignaler reports liveness checks and signals as steps.
type observedSignaler struct {
	inner killplan.ProcessSignaler
	obs   Observer
}

func (s observedSignaler) Gone(pid int) bool {
	gone := s.inner.Gone(pid)
	state := "alive"
	if gone {
		state = "gone"
	}
	s.obs(Step{Phase: backend.PhaseProbe, Command: fmt.Sprintf("signal 0 %d: %s", pid, state)})
	return gone
}

func (s observedSignaler) Kill(pid int, sig backend.Signal) {
	s.inner.Kill(pid, sig)
	s.obs(Step{Phase: backend.PhaseHard, Command: fmt.Sprintf("kill -%s -%d %d", sig, pid, pid)})
}

// Backends lists the command-driven backends in the registry together
// with the built-in process-signal backends.
func (d *Dispatcher) Backends() []backend.Info {
	infos := d.Registry.List()
	for _, b := range model.Backends {
		if b.PIDBased() {
			infos = append(infos, backend.Info{Name: string(b), Kind: backend.KindPID})
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
