// testserver starts a reaper API server against a simulated container
// runtime for E2E testing. No real runtime or process is touched: every
// container exists until its cleanup command runs, and every pid is gone
// once it has been killed.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/seantiz/reaper/internal/api"
	"github.com/seantiz/reaper/internal/backend"
	"github.com/seantiz/reaper/internal/config"
	"github.com/seantiz/reaper/internal/engine"
	"github.com/seantiz/reaper/internal/reaper"
	"github.com/seantiz/reaper/internal/store"
)

// simRuntime answers backend commands as a well-behaved runtime would.
type simRuntime struct {
	mu      sync.Mutex
	delay   time.Duration
	removed map[string]bool
	killed  map[int]bool
}

func (s *simRuntime) Run(ctx context.Context, c backend.CommandSpec) backend.ExecResult {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return backend.ExecResult{ExitStatus: 1, TimedOut: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Args[len(c.Args)-1]
	switch c.Phase {
	case backend.PhaseProbe:
		if s.removed[id] {
			return backend.ExecResult{ExitStatus: 1, Stderr: []byte("Error: No such container: " + id)}
		}
	case backend.PhaseCleanup:
		s.removed[id] = true
	}
	return backend.ExecResult{}
}

func (s *simRuntime) Gone(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed[pid]
}

func (s *simRuntime) Kill(pid int, sig backend.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig == backend.SignalKill {
		s.killed[pid] = true
	}
}

func main() {
	cfg := config.Load()

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg, ctrCfg, err := reaper.NewRegistry(cfg)
	if err != nil {
		log.Fatalf("failed to configure backends: %v", err)
	}

	sim := &simRuntime{
		delay:   10 * time.Millisecond,
		removed: make(map[string]bool),
		killed:  make(map[int]bool),
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	d := &reaper.Dispatcher{
		Registry:    reg,
		CtrDefaults: ctrCfg,
		Signaler:    sim,
		Runner:      sim,
		Logger:      logger,
		OpTimeout:   cfg.OpTimeout,
	}
	eng := engine.NewEngine(db, d, logger)
	srv := api.NewServer(cfg.ListenAddr, db, d, eng, logger)

	logger.Info("testserver: starting", "addr", cfg.ListenAddr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runErr := srv.Run(ctx)
	eng.Wait()
	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
}
