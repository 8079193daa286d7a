//go:build unix

package e2e

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

var (
	binMu    sync.Mutex
	binDir   string
	binaries = make(map[string]string)
)

// getBinary builds ./cmd/<name> once per test run and returns its path.
func getBinary(t *testing.T, name string) string {
	t.Helper()
	binMu.Lock()
	defer binMu.Unlock()

	if path, ok := binaries[name]; ok {
		return path
	}
	if binDir == "" {
		dir, err := os.MkdirTemp("", "reaper-e2e-*")
		if err != nil {
			t.Fatalf("create build dir: %v", err)
		}
		binDir = dir
	}

	path := filepath.Join(binDir, name)
	cmd := exec.Command("go", "build", "-o", path, "./cmd/"+name)
	cmd.Dir = findRepoRoot(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build %s: %v\n%s", name, err, out)
	}
	binaries[name] = path
	return path
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

// fakeDockerScript stands in for the docker CLI. Containers are files under
// state/containers; every invocation is appended to state/calls.log.
const fakeDockerScript = `#!/bin/sh
state="$(dirname "$0")/state"
echo "$*" >> "$state/calls.log"
sub="$1"
shift
for last; do :; done
case "$sub" in
inspect)
	if [ -e "$state/containers/$last" ]; then
		echo '[{}]'
		exit 0
	fi
	echo "Error: No such container: $last" >&2
	exit 1
	;;
rm)
	rm -f "$state/containers/$last"
	;;
esac
exit 0
`

// fakeRuntime is a scripted docker binary with its own state directory.
type fakeRuntime struct {
	bin   string
	state string
}

func newFakeRuntime(t *testing.T) *fakeRuntime {
	t.Helper()
	dir := t.TempDir()
	state := filepath.Join(dir, "state")
	if err := os.MkdirAll(filepath.Join(state, "containers"), 0o755); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(dir, "docker")
	if err := os.WriteFile(bin, []byte(fakeDockerScript), 0o755); err != nil {
		t.Fatal(err)
	}
	return &fakeRuntime{bin: bin, state: state}
}

func (r *fakeRuntime) addContainer(t *testing.T, id string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.state, "containers", id), nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func (r *fakeRuntime) exists(id string) bool {
	_, err := os.Stat(filepath.Join(r.state, "containers", id))
	return err == nil
}

// subcommands returns the first word of every recorded invocation.
func (r *fakeRuntime) subcommands(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.state, "calls.log"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var subs []string
	for line := range strings.Lines(string(data)) {
		if fields := strings.Fields(line); len(fields) > 0 {
			subs = append(subs, fields[0])
		}
	}
	return subs
}

// jobDoc returns a docker job document whose hard deadline is offset from now.
func jobDoc(t *testing.T, container string, deadline, grace time.Duration, extra map[string]any) []byte {
	t.Helper()
	now := time.Now()
	doc := map[string]any{
		"schema_version":   "reaper.job@0.1.0",
		"run_id":           "run-" + container,
		"backend":          "docker",
		"container_id":     container,
		"created_unix_ms":  now.Add(-time.Second).UnixMilli(),
		"deadline_unix_ms": now.Add(deadline).UnixMilli(),
		"grace_ms":         grace.Milliseconds(),
		"cleanup_ms":       5000,
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return data
}

// serverProc holds a running server subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stdout *lockedBuffer
	url    string
}

// startServer runs binary on a free port with env appended to the
// environment and waits for /healthz.
func startServer(t *testing.T, binary string, env ...string) *serverProc {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	stdout := &lockedBuffer{}
	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(),
		"REAPER_LISTEN_ADDR="+addr,
		"REAPER_DB_PATH="+filepath.Join(t.TempDir(), "test.db"),
		"REAPER_LOG_LEVEL=info",
		"REAPER_FC_CNI_CONFIG_DIR="+t.TempDir(),
	)
	cmd.Env = append(cmd.Env, env...)
	cmd.Stdout = stdout
	cmd.Stderr = stdout

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:    cmd,
		stdout: stdout,
		url:    "http://" + addr,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\nstdout:\n%s", startupTimeout, stdout.String())
	return nil
}

func (sp *serverProc) submit(t *testing.T, body []byte) map[string]any {
	t.Helper()
	resp, err := http.Post(sp.url+"/v1/reaps", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/reaps: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var reap map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&reap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return reap
}

func (sp *serverProc) pollStatus(t *testing.T, id, expected string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var reap map[string]any
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/v1/reaps/" + id)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		err = json.NewDecoder(resp.Body).Decode(&reap)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if reap["status"] == expected {
			return reap
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("reap %s did not reach %q within %v (last %v)\nstdout:\n%s", id, expected, timeout, reap["status"], sp.stdout.String())
	return nil
}
