// Package killplan enforces a workload's termination deadline. A Plan is
// derived from a job's wall-clock deadlines, converted once into a
// monotonic Schedule, and driven through soft-stop, hard-kill and cleanup
// phases either by a backend.Backend (Enforce) or by direct process
// signaling (EnforcePID). Both drivers always return one of three Results.
package killplan
