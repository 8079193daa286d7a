// Package engine supervises reaps. Each submitted job gets its own
// goroutine that records the reap in the store, runs the dispatcher until
// the kill plan reaches a result, and streams every command it issues to
// subscribers.
package engine
