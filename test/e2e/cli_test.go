//go:build unix

package e2e

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// runReaper runs the one-shot binary against a job file in a fresh state
// directory and returns stdout, stderr and the exit code.
func runReaper(t *testing.T, rt *fakeRuntime, stateDir string, job []byte) (string, string, int) {
	t.Helper()
	binary := getBinary(t, "reaper")

	jobPath := filepath.Join(stateDir, "job.json")
	if err := os.WriteFile(jobPath, job, 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(binary, "--job", jobPath)
	cmd.Env = append(os.Environ(),
		"REAPER_DOCKER_BIN="+rt.bin,
		"REAPER_OP_TIMEOUT=5s",
		"REAPER_FC_CNI_CONFIG_DIR="+t.TempDir(),
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		t.Fatalf("run reaper: %v", err)
	}
	return stdout.String(), stderr.String(), code
}

func TestReaperKillsOverdueContainer(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.addContainer(t, "c1")
	stateDir := t.TempDir()

	stdout, stderr, code := runReaper(t, rt, stateDir, jobDoc(t, "c1", -time.Millisecond, 100*time.Millisecond, nil))
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\nstderr:\n%s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "killed" {
		t.Errorf("stdout = %q, want killed", stdout)
	}
	if rt.exists("c1") {
		t.Error("container still exists")
	}

	want := []string{"inspect", "kill", "rm", "inspect"}
	if got := rt.subcommands(t); !slices.Equal(got, want) {
		t.Errorf("subcommands = %v, want %v", got, want)
	}

	data, err := os.ReadFile(filepath.Join(stateDir, "reaped"))
	if err != nil {
		t.Fatalf("reaped marker: %v", err)
	}
	if string(data) != "reaped\n" {
		t.Errorf("reaped marker = %q", data)
	}
}

func TestReaperSoftStopsBeforeHardKill(t *testing.T) {
	getBinary(t, "reaper") // build before the deadline clock starts
	rt := newFakeRuntime(t)
	rt.addContainer(t, "c1")
	stateDir := t.TempDir()

	job := jobDoc(t, "c1", 1500*time.Millisecond, time.Second, nil)
	stdout, stderr, code := runReaper(t, rt, stateDir, job)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\nstderr:\n%s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "killed" {
		t.Errorf("stdout = %q, want killed", stdout)
	}

	subs := rt.subcommands(t)
	stop := slices.Index(subs, "stop")
	kill := slices.Index(subs, "kill")
	rm := slices.Index(subs, "rm")
	if stop < 0 || kill < 0 || rm < 0 || !(stop < kill && kill < rm) {
		t.Errorf("subcommands = %v, want stop before kill before rm", subs)
	}
}

func TestReaperDoneMarkerSkipsCommands(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.addContainer(t, "c1")
	stateDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(stateDir, "done"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, code := runReaper(t, rt, stateDir, jobDoc(t, "c1", -time.Millisecond, 100*time.Millisecond, nil))
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\nstderr:\n%s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "completed" {
		t.Errorf("stdout = %q, want completed", stdout)
	}
	if subs := rt.subcommands(t); len(subs) != 0 {
		t.Errorf("subcommands = %v, want none", subs)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "reaped")); !os.IsNotExist(err) {
		t.Errorf("reaped marker written for a completed workload")
	}
}

func TestReaperRejectsSchemaMismatch(t *testing.T) {
	rt := newFakeRuntime(t)
	job := jobDoc(t, "c1", time.Second, 100*time.Millisecond, map[string]any{"schema_version": "reaper.job@9.9.9"})

	_, stderr, code := runReaper(t, rt, t.TempDir(), job)
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "schema") {
		t.Errorf("stderr = %q, want schema error", stderr)
	}
}

func TestReaperRequiresJobFlag(t *testing.T) {
	binary := getBinary(t, "reaper")

	err := exec.Command(binary).Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 2 {
		t.Errorf("err = %v, want exit status 2", err)
	}
}
