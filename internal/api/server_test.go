package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/reaper/internal/backend"
	"github.com/seantiz/reaper/internal/backend/dockerlike"
	"github.com/seantiz/reaper/internal/engine"
	"github.com/seantiz/reaper/internal/model"
	"github.com/seantiz/reaper/internal/reaper"
	"github.com/seantiz/reaper/internal/store"
)

// fakeRunner answers every command with success and reports a container gone
// once it has been removed.
type fakeRunner struct {
	mu      sync.Mutex
	removed map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, c backend.CommandSpec) backend.ExecResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := c.Args[len(c.Args)-1]
	switch c.Phase {
	case backend.PhaseProbe:
		if f.removed[id] {
			return backend.ExecResult{ExitStatus: 1, Stderr: []byte("Error: No such container: " + id)}
		}
	case backend.PhaseCleanup:
		f.removed[id] = true
	}
	return backend.ExecResult{}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reg := backend.NewRegistry()
	reg.Register(string(model.BackendDocker), dockerlike.New(backend.MustParseBinary("docker")))
	d := &reaper.Dispatcher{
		Registry:  reg,
		Runner:    &fakeRunner{removed: make(map[string]bool)},
		Logger:    logger,
		OpTimeout: 100 * time.Millisecond,
	}
	eng := engine.NewEngine(s, d, logger)
	t.Cleanup(eng.Wait)
	return NewServer(":0", s, d, eng, logger)
}

// jobBody returns a docker job document whose hard deadline is offset from now.
func jobBody(t *testing.T, container string, deadline time.Duration) string {
	t.Helper()
	now := time.Now()
	data, err := json.Marshal(map[string]any{
		"schema_version":   model.JobSchemaVersion,
		"run_id":           "run-" + container,
		"backend":          "docker",
		"container_id":     container,
		"created_unix_ms":  now.Add(-time.Second).UnixMilli(),
		"deadline_unix_ms": now.Add(deadline).UnixMilli(),
		"grace_ms":         100,
		"cleanup_ms":       5000,
	})
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return string(data)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	// chi middleware.RequestID does not set X-Request-Id on the response by default,
	// but it sets it in the request context. Verify the middleware is active by
	// checking the request was processed successfully.
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/test", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /test: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestListBackends(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/backends")
	if err != nil {
		t.Fatalf("GET /v1/backends: %v", err)
	}
	defer resp.Body.Close()

	var infos []backend.Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}

	kinds := make(map[string]string)
	for _, info := range infos {
		kinds[info.Name] = info.Kind
	}
	want := map[string]string{
		"docker":          backend.KindCLI,
		"vz":              backend.KindPID,
		"firecracker-vmm": backend.KindPID,
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Errorf("backend %q kind = %q, want %q", name, kinds[name], kind)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	d := &reaper.Dispatcher{Registry: backend.NewRegistry(), Logger: logger}
	srv := NewServer("127.0.0.1:0", s, d, engine.NewEngine(s, d, logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunListenError(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	d := &reaper.Dispatcher{Registry: backend.NewRegistry(), Logger: logger}
	srv := NewServer("not-an-address", s, d, engine.NewEngine(s, d, logger), logger)

	if err := srv.Run(context.Background()); err == nil {
		t.Error("expected listen error")
	}
}
