package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/seantiz/reaper/internal/backend"
)

// DefaultMaxOutput is the per-stream capture limit in bytes.
const DefaultMaxOutput = 64 * 1024

// waitDelay bounds how long Run waits for output pipes held open by
// descendants after the command itself has exited or been killed.
const waitDelay = 250 * time.Millisecond

// Executor runs CommandSpecs. The zero value is not usable; call New.
type Executor struct {
	logger    *slog.Logger
	baseEnv   []string
	maxOutput int
}

// New returns an Executor that inherits the current environment with
// LC_ALL=C so that runtime error messages are not localized.
func New(logger *slog.Logger) *Executor {
	env := append(os.Environ(), "LC_ALL=C")
	return &Executor{
		logger:    logger,
		baseEnv:   env,
		maxOutput: DefaultMaxOutput,
	}
}

// WithMaxOutput returns a copy of e capturing at most n bytes per stream.
func (e *Executor) WithMaxOutput(n int) *Executor {
	cp := *e
	cp.maxOutput = n
	return &cp
}

// Run executes spec and never returns an error: a command that cannot be
// started reports exit status 1 and TimedOut so callers treat it as
// inconclusive. A command that outlives its timeout is killed along with
// its process group.
func (e *Executor) Run(ctx context.Context, spec backend.CommandSpec) backend.ExecResult {
	timeout := max(spec.Timeout, time.Millisecond)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newCappedBuffer(e.maxOutput)
	stderr := newCappedBuffer(e.maxOutput)

	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	cmd.Env = append(append([]string(nil), e.baseEnv...), spec.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := backend.ExecResult{
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
	}

	switch {
	case cmd.ProcessState == nil:
		res.ExitStatus = 1
		res.TimedOut = true
		e.logger.Debug("command failed to start",
			"phase", spec.Phase,
			"command", spec.String(),
			"error", err,
		)
		return res
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
	}
	res.ExitStatus = exitStatus(cmd.ProcessState)

	e.logger.Debug("command finished",
		"phase", spec.Phase,
		"command", spec.String(),
		"exit_status", res.ExitStatus,
		"timed_out", res.TimedOut,
		"duration_ms", elapsed.Milliseconds(),
	)
	return res
}
