// Package runner executes backend commands with a wall-clock timeout,
// bounded output capture and a deterministic environment.
package runner
