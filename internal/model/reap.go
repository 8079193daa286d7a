package model

import "time"

// Reap status constants. The terminal statuses other than failed mirror the
// three kill plan outcomes.
const (
	StatusPending        = "pending"
	StatusRunning        = "running"
	StatusCompleted      = "completed"
	StatusKilled         = "killed"
	StatusCleanupTimeout = "cleanup_timeout"
	StatusFailed         = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusCompleted:      true,
		StatusKilled:         true,
		StatusCleanupTimeout: true,
		StatusFailed:         true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether no further transition is possible from status.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusKilled, StatusCleanupTimeout, StatusFailed:
		return true
	}
	return false
}

// Event is one command issued while enforcing a reap.
type Event struct {
	ID        int64     `json:"id"`
	ReapID    string    `json:"reap_id"`
	Seq       int       `json:"seq"`
	Phase     string    `json:"phase"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// Reap is the supervisor's record of one termination enforcement.
type Reap struct {
	ID              string     `json:"id"`
	RunID           string     `json:"run_id"`
	Backend         string     `json:"backend"`
	Target          string     `json:"target"`
	PID             *int       `json:"pid,omitempty"`
	Status          string     `json:"status"`
	Error           string     `json:"error,omitempty"`
	SoftAt          *time.Time `json:"soft_at,omitempty"`
	HardAt          *time.Time `json:"hard_at,omitempty"`
	CleanupDeadline *time.Time `json:"cleanup_deadline,omitempty"`
	Commands        int        `json:"commands"`
	DurationMS      *int       `json:"duration_ms,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}
