// Command reaperd is the reaper daemon: it accepts jobs over HTTP and
// enforces each one's deadline concurrently.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seantiz/reaper/internal/api"
	"github.com/seantiz/reaper/internal/config"
	"github.com/seantiz/reaper/internal/engine"
	"github.com/seantiz/reaper/internal/reaper"
	"github.com/seantiz/reaper/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("reaperd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"op_timeout", cfg.OpTimeout.String(),
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	d, err := reaper.NewDispatcher(cfg, logger)
	if err != nil {
		log.Fatalf("failed to configure backends: %v", err)
	}
	for _, b := range d.Backends() {
		logger.Info("backend registered", "backend", b.Name, "kind", b.Kind)
	}

	eng := engine.NewEngine(db, d, logger)
	srv := api.NewServer(cfg.ListenAddr, db, d, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runErr := srv.Run(ctx)

	// Reaps already accepted must still reach a result.
	if n := eng.Active(); n > 0 {
		logger.Info("waiting for in-flight reaps", "active", n)
	}
	eng.Wait()

	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
}
