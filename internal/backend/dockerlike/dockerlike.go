// Package dockerlike drives workloads through a Docker-compatible CLI.
// The same implementation serves docker and podman.
package dockerlike

import (
	"strconv"
	"time"

	"github.com/seantiz/reaper/internal/backend"
)

// Default binaries for the two compatible runtimes.
const (
	DefaultDockerBin = "docker"
	DefaultPodmanBin = "podman"
)

func signalName(sig backend.Signal) string {
	if sig == backend.SignalKill {
		return "SIGKILL"
	}
	return "SIGTERM"
}

// stopSeconds converts a grace span into the whole seconds accepted by
// `stop --time`, rounding up with a floor of one.
func stopSeconds(grace time.Duration) int64 {
	ms := grace.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return max((ms+999)/1000, 1)
}

// Backend implements backend.Backend for docker and podman.
type Backend struct {
	bin backend.Binary
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend invoking bin.
func New(bin backend.Binary) *Backend {
	return &Backend{bin: bin}
}

// BuildSoftStop uses the runtime's own graceful stop, which sends the
// container's stop signal and waits up to the grace period.
func (b *Backend) BuildSoftStop(t backend.TargetRef, _ backend.Signal, grace, timeout time.Duration) []backend.CommandSpec {
	secs := strconv.FormatInt(stopSeconds(grace), 10)
	return []backend.CommandSpec{
		b.bin.Command(timeout, true, "stop", "--time", secs, t.ID),
	}
}

func (b *Backend) BuildHardKill(t backend.TargetRef, sig backend.Signal, timeout time.Duration) []backend.CommandSpec {
	return []backend.CommandSpec{
		b.bin.Command(timeout, false, "kill", "--signal", signalName(sig), t.ID),
	}
}

func (b *Backend) BuildCleanup(t backend.TargetRef, timeout time.Duration) []backend.CommandSpec {
	return []backend.CommandSpec{
		b.bin.Command(timeout, true, "rm", "-f", t.ID),
	}
}

func (b *Backend) BuildProbe(t backend.TargetRef, timeout time.Duration) *backend.CommandSpec {
	probe := b.bin.Command(timeout, true, "inspect", t.ID)
	return &probe
}
