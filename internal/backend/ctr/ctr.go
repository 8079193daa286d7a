// Package ctr drives workloads managed by a containerd-style CLI such as
// firecracker-ctr. Every invocation carries the endpoint, namespace and a
// server-side timeout.
package ctr

import (
	"fmt"
	"slices"
	"time"

	"github.com/seantiz/reaper/internal/backend"
)

// Connection defaults.
const (
	DefaultBin       = "firecracker-ctr"
	DefaultAddress   = "/run/firecracker-containerd/containerd.sock"
	DefaultNamespace = "reaper"
)

// Config holds the CLI and the containerd endpoint it talks to.
type Config struct {
	Bin       backend.Binary
	Address   string
	Namespace string
}

// DefaultConfig returns the firecracker-containerd defaults.
func DefaultConfig() Config {
	return Config{
		Bin:       backend.MustParseBinary(DefaultBin),
		Address:   DefaultAddress,
		Namespace: DefaultNamespace,
	}
}

func signalName(sig backend.Signal) string {
	if sig == backend.SignalKill {
		return "SIGKILL"
	}
	return "SIGTERM"
}

// timeoutArg renders a duration as the CLI's --timeout value in whole
// seconds, at least one.
func timeoutArg(d time.Duration) string {
	return fmt.Sprintf("%ds", max(int64(d/time.Second), 1))
}

// Backend implements backend.Backend for a containerd-style CLI.
type Backend struct {
	cfg Config
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend for the given endpoint.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

func (b *Backend) command(timeout time.Duration, bestEffort bool, args ...string) backend.CommandSpec {
	full := slices.Concat([]string{
		"--address", b.cfg.Address,
		"--namespace", b.cfg.Namespace,
		"--timeout", timeoutArg(timeout),
	}, args)
	return b.cfg.Bin.Command(timeout, bestEffort, full...)
}

func (b *Backend) BuildSoftStop(t backend.TargetRef, sig backend.Signal, _, timeout time.Duration) []backend.CommandSpec {
	return []backend.CommandSpec{
		b.command(timeout, true, "tasks", "kill", "--all", "--signal", signalName(sig), t.ID),
	}
}

func (b *Backend) BuildHardKill(t backend.TargetRef, sig backend.Signal, timeout time.Duration) []backend.CommandSpec {
	return []backend.CommandSpec{
		b.command(timeout, false, "tasks", "kill", "--all", "--signal", signalName(sig), t.ID),
	}
}

// BuildCleanup deletes the task and then its container. Both calls are
// best-effort and the second is issued regardless of the first.
func (b *Backend) BuildCleanup(t backend.TargetRef, timeout time.Duration) []backend.CommandSpec {
	return []backend.CommandSpec{
		b.command(timeout, true, "tasks", "delete", "--force", t.ID),
		b.command(timeout, true, "containers", "delete", t.ID),
	}
}

func (b *Backend) BuildProbe(t backend.TargetRef, timeout time.Duration) *backend.CommandSpec {
	probe := b.command(timeout, true, "containers", "info", t.ID)
	return &probe
}
