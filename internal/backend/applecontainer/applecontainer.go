// Package applecontainer drives workloads hosted by the macOS-native
// `container` CLI.
package applecontainer

import (
	"time"

	"github.com/seantiz/reaper/internal/backend"
)

// DefaultBin is the CLI invoked when no binary is configured.
const DefaultBin = "container"

// signalName spells a signal the way the container CLI expects. There is
// no distinct kill vocabulary beyond "KILL"; both phases use the kill
// sub-command.
func signalName(sig backend.Signal) string {
	if sig == backend.SignalKill {
		return "KILL"
	}
	return "SIGTERM"
}

// Backend implements backend.Backend for the container CLI.
type Backend struct {
	bin backend.Binary
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend invoking bin.
func New(bin backend.Binary) *Backend {
	return &Backend{bin: bin}
}

func (b *Backend) BuildSoftStop(t backend.TargetRef, sig backend.Signal, _, timeout time.Duration) []backend.CommandSpec {
	return []backend.CommandSpec{
		b.bin.Command(timeout, true, "kill", "--signal", signalName(sig), t.ID),
	}
}

func (b *Backend) BuildHardKill(t backend.TargetRef, sig backend.Signal, timeout time.Duration) []backend.CommandSpec {
	return []backend.CommandSpec{
		b.bin.Command(timeout, false, "kill", "--signal", signalName(sig), t.ID),
	}
}

func (b *Backend) BuildCleanup(t backend.TargetRef, timeout time.Duration) []backend.CommandSpec {
	return []backend.CommandSpec{
		b.bin.Command(timeout, true, "delete", "--force", t.ID),
	}
}

func (b *Backend) BuildProbe(t backend.TargetRef, timeout time.Duration) *backend.CommandSpec {
	probe := b.bin.Command(timeout, true, "inspect", t.ID)
	return &probe
}
