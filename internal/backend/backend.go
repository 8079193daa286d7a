package backend

import (
	"strings"
	"time"
)

// Phase names stamped on commands by the kill plan driver.
const (
	PhaseProbe   = "probe"
	PhaseSoft    = "soft"
	PhaseHard    = "hard"
	PhaseCleanup = "cleanup"
)

// Backend builds the commands that stop and clean up a workload. All
// backend-specific vocabulary (signal spelling, sub-command shape,
// multi-step cleanup) lives behind this interface.
type Backend interface {
	// BuildSoftStop returns the commands requesting graceful termination.
	BuildSoftStop(t TargetRef, sig Signal, grace, timeout time.Duration) []CommandSpec

	// BuildHardKill returns the commands forcing termination.
	BuildHardKill(t TargetRef, sig Signal, timeout time.Duration) []CommandSpec

	// BuildCleanup returns the commands removing runtime bookkeeping. Every
	// command is attempted even if an earlier one fails.
	BuildCleanup(t TargetRef, timeout time.Duration) []CommandSpec

	// BuildProbe returns a cheap existence check, or nil if the backend has none.
	BuildProbe(t TargetRef, timeout time.Duration) *CommandSpec
}

// TargetRef identifies the workload inside its backend.
type TargetRef struct {
	ID string
}

// CommandSpec is one external command to run.
type CommandSpec struct {
	Program string
	Args    []string

	// Env holds KEY=VALUE overrides applied on top of the executor's base environment.
	Env []string

	Timeout time.Duration

	// BestEffort commands may fail without affecting the caller.
	BestEffort bool

	// Phase is set by the driver, not by backends.
	Phase string
}

// String renders the command line for logs and events.
func (c CommandSpec) String() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return c.Program + " " + strings.Join(c.Args, " ")
}

// ExecResult is what the executor reports after running a CommandSpec.
type ExecResult struct {
	ExitStatus      int
	TimedOut        bool
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
}

// goneMarkers are lower-case stderr fragments that runtimes print when the
// target no longer exists.
var goneMarkers = []string{
	"not found",
	"no such",
	"does not exist",
	"not exist",
	"unknown container",
}

// Succeeded reports a zero exit status without a timeout.
func (r ExecResult) Succeeded() bool {
	return !r.TimedOut && r.ExitStatus == 0
}

// TargetGone reports whether a failed command failed because the target is
// already absent. A timed-out command never counts as confirmation.
func (r ExecResult) TargetGone() bool {
	if r.Succeeded() || r.TimedOut {
		return false
	}
	stderr := strings.ToLower(string(r.Stderr))
	for _, m := range goneMarkers {
		if strings.Contains(stderr, m) {
			return true
		}
	}
	return false
}
