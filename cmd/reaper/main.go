// Command reaper enforces the deadline of a single workload described by a
// job file, then exits.
//
// The job's state directory (by default the directory holding the job file)
// is polled for a "done" marker; if the workload has to be stopped a
// "reaped" marker is written there.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/seantiz/reaper/internal/config"
	"github.com/seantiz/reaper/internal/model"
	"github.com/seantiz/reaper/internal/reaper"
)

// exitError is the status for any failure to enforce the job.
const exitError = 2

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "reaper: %v\n", err)
		os.Exit(exitError)
	}
}

func run(args []string) error {
	var jobPath string

	flagSet := pflag.NewFlagSet("reaper", pflag.ContinueOnError)
	flagSet.StringVar(&jobPath, "job", "", "path to the job file (required)")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: reaper --job PATH\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if jobPath == "" {
		flagSet.Usage()
		return errors.New("--job is required")
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg := config.Load()
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	job, err := model.ReadJobFile(jobPath)
	if err != nil {
		return err
	}
	if job.StateDir == "" {
		job.StateDir = filepath.Dir(jobPath)
	}

	d, err := reaper.NewDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	plan := d.Plan(job)
	result, err := d.Enforce(context.Background(), job, plan, reaper.DoneMarker(job.StateDir), nil)
	if err != nil {
		return err
	}

	if reaper.NeedsReapedMarker(result, job.StateDir) {
		if err := reaper.WriteReapedMarker(job.StateDir); err != nil {
			return err
		}
	}

	fmt.Println(result.String())
	return nil
}
