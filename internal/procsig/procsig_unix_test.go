//go:build unix

package procsig_test

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/seantiz/reaper/internal/backend"
	"github.com/seantiz/reaper/internal/procsig"
)

func startGroupLeader(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
	})
	return cmd
}

func TestGoneInvalidPID(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if procsig.Gone(pid) {
			t.Errorf("Gone(%d) = true, want false", pid)
		}
	}
}

func TestKillProcessGroup(t *testing.T) {
	cmd := startGroupLeader(t)
	pid := cmd.Process.Pid

	if procsig.Gone(pid) {
		t.Fatal("running process reported gone")
	}

	var sig procsig.Signaler
	sig.Kill(pid, backend.SignalKill)

	waited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after KILL")
	}

	if !sig.Gone(pid) {
		t.Error("reaped process not reported gone")
	}
}

func TestKillTerm(t *testing.T) {
	cmd := startGroupLeader(t)
	procsig.Kill(cmd.Process.Pid, backend.SignalTerm)

	err := cmd.Wait()
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("Wait() = %v, want exit error", err)
	}
	ws := exitErr.Sys().(syscall.WaitStatus)
	if !ws.Signaled() || ws.Signal() != syscall.SIGTERM {
		t.Errorf("wait status = %v, want terminated by SIGTERM", ws)
	}
}
