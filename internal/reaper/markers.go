package reaper

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/seantiz/reaper/internal/killplan"
)

// Marker and scratch file names inside a job's state directory.
const (
	DoneMarkerName   = "done"
	ReapedMarkerName = "reaped"
	VZScratchName    = "rootfs.cow.img"
)

// DoneMarker returns a predicate that reports whether the launcher has
// written the done marker into stateDir. An empty stateDir never reports done.
func DoneMarker(stateDir string) killplan.DoneFunc {
	if stateDir == "" {
		return func() bool { return false }
	}
	path := filepath.Join(stateDir, DoneMarkerName)
	return func() bool {
		_, err := os.Stat(path)
		return err == nil
	}
}

// WriteReapedMarker records in stateDir that the reaper had to intervene.
func WriteReapedMarker(stateDir string) error {
	path := filepath.Join(stateDir, ReapedMarkerName)
	if err := os.WriteFile(path, []byte("reaped\n"), 0o644); err != nil {
		return fmt.Errorf("write reaped marker: %w", err)
	}
	return nil
}

// NeedsReapedMarker reports whether a result should be recorded with the
// reaped marker: anything but a clean completion, unless the workload
// reported done in the meantime.
func NeedsReapedMarker(result killplan.Result, stateDir string) bool {
	if stateDir == "" || result == killplan.CompletedBeforeDeadline {
		return false
	}
	return !DoneMarker(stateDir)()
}
