package applecontainer

import (
	"slices"
	"testing"
	"time"

	"github.com/seantiz/reaper/internal/backend"
)

func newTestBackend() *Backend {
	return New(backend.MustParseBinary(DefaultBin))
}

func TestSignalVocabulary(t *testing.T) {
	if got := signalName(backend.SignalTerm); got != "SIGTERM" {
		t.Errorf("TERM = %q, want SIGTERM", got)
	}
	if got := signalName(backend.SignalKill); got != "KILL" {
		t.Errorf("KILL = %q, want KILL", got)
	}
}

func TestSoftAndHardShareKillSubcommand(t *testing.T) {
	b := newTestBackend()
	target := backend.TargetRef{ID: "job-1"}

	soft := b.BuildSoftStop(target, backend.SignalTerm, 5*time.Second, 2*time.Second)
	hard := b.BuildHardKill(target, backend.SignalKill, 2*time.Second)

	if len(soft) != 1 || len(hard) != 1 {
		t.Fatalf("got %d soft and %d hard commands, want 1 each", len(soft), len(hard))
	}
	if !slices.Equal(soft[0].Args, []string{"kill", "--signal", "SIGTERM", "job-1"}) {
		t.Errorf("soft args = %q", soft[0].Args)
	}
	if !slices.Equal(hard[0].Args, []string{"kill", "--signal", "KILL", "job-1"}) {
		t.Errorf("hard args = %q", hard[0].Args)
	}
	if !soft[0].BestEffort {
		t.Error("soft-stop should be best-effort")
	}
	if hard[0].BestEffort {
		t.Error("hard-kill should not be best-effort")
	}
	if soft[0].Program != "container" || soft[0].Timeout != 2*time.Second {
		t.Errorf("soft = %s (timeout %v)", soft[0], soft[0].Timeout)
	}
}

func TestCleanupAndProbe(t *testing.T) {
	b := newTestBackend()
	target := backend.TargetRef{ID: "job-1"}

	cleanup := b.BuildCleanup(target, time.Second)
	if len(cleanup) != 1 || !slices.Equal(cleanup[0].Args, []string{"delete", "--force", "job-1"}) {
		t.Errorf("cleanup = %v", cleanup)
	}
	if !cleanup[0].BestEffort {
		t.Error("cleanup should be best-effort")
	}

	probe := b.BuildProbe(target, time.Second)
	if probe == nil {
		t.Fatal("BuildProbe returned nil")
	}
	if !slices.Equal(probe.Args, []string{"inspect", "job-1"}) {
		t.Errorf("probe args = %q", probe.Args)
	}
}
