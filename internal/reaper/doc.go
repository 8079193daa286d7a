// Package reaper turns a job descriptor into a running enforcement: it picks
// the command-driven or process-signal path for the job's backend, wires
// scratch cleanup and soft-stop hooks, and manages the done/reaped markers
// shared with the launcher.
package reaper
