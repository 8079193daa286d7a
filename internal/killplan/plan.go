package killplan

import (
	"math"
	"time"

	"github.com/seantiz/reaper/internal/backend"
	"github.com/seantiz/reaper/internal/model"
)

// Defaults applied by FromJob.
const (
	DefaultOpTimeout      = 2 * time.Second
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = time.Second
)

// RetryPolicy bounds the backoff between cleanup attempts.
type RetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultRetryPolicy returns the policy used for reaping.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: DefaultInitialBackoff, Max: DefaultMaxBackoff}
}

// next doubles cur, capped at Max.
func (p RetryPolicy) next(cur time.Duration) time.Duration {
	return min(cur*2, p.Max)
}

// Plan is the termination schedule for one workload in wall-clock terms.
// Invariant: SoftAt <= HardAt <= CleanupDeadline.
type Plan struct {
	Backend model.Backend
	Target  backend.TargetRef

	SoftAt          time.Time
	HardAt          time.Time
	CleanupDeadline time.Time

	SoftSignal    backend.Signal
	HardSignal    backend.Signal
	Grace         time.Duration
	CleanupBudget time.Duration

	// OpTimeout is the ceiling for every individual command.
	OpTimeout time.Duration
	Retry     RetryPolicy
}

// FromJob derives a plan from a job descriptor:
//
//	soft    = max(deadline - grace, created), never after hard
//	hard    = deadline
//	cleanup = deadline + cleanup budget
func FromJob(job *model.Job) Plan {
	hard := max(job.DeadlineUnixMS, 0)
	grace := max(job.GraceMS, 0)
	budget := max(job.CleanupMS, 0)

	soft := max(hard-grace, 0)
	soft = max(soft, job.CreatedUnixMS)
	soft = min(soft, hard)

	cleanup := int64(math.MaxInt64)
	if budget <= math.MaxInt64-hard {
		cleanup = hard + budget
	}

	return Plan{
		Backend:         job.Backend,
		Target:          backend.TargetRef{ID: job.ContainerID},
		SoftAt:          time.UnixMilli(soft),
		HardAt:          time.UnixMilli(hard),
		CleanupDeadline: time.UnixMilli(cleanup),
		SoftSignal:      backend.SignalTerm,
		HardSignal:      backend.SignalKill,
		Grace:           time.Duration(max(grace, 1)) * time.Millisecond,
		CleanupBudget:   time.Duration(budget) * time.Millisecond,
		OpTimeout:       DefaultOpTimeout,
		Retry:           DefaultRetryPolicy(),
	}
}

// Result is the terminal outcome of an enforcement.
type Result int

const (
	// CompletedBeforeDeadline means the workload finished, or was found
	// gone, before any hard kill was needed.
	CompletedBeforeDeadline Result = iota

	// KilledAtHardDeadline means the hard kill was issued and the target
	// was then confirmed gone.
	KilledAtHardDeadline

	// CleanupTimeout means cleanup never confirmed completion before the
	// cleanup deadline.
	CleanupTimeout
)

// String returns the reap status that records this result.
func (r Result) String() string {
	switch r {
	case CompletedBeforeDeadline:
		return model.StatusCompleted
	case KilledAtHardDeadline:
		return model.StatusKilled
	case CleanupTimeout:
		return model.StatusCleanupTimeout
	default:
		return "unknown"
	}
}
