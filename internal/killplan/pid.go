package killplan

import "github.com/seantiz/reaper/internal/backend"

// ProcessSignaler checks and signals a process and its process group.
type ProcessSignaler interface {
	// Gone reports whether both the process and its group are confirmed
	// absent. Anything short of "no such process" counts as alive.
	Gone(pid int) bool

	// Kill sends sig to the process group and the process, ignoring errors.
	Kill(pid int, sig backend.Signal)
}

// PIDTarget is a workload whose only termination primitive is a host process.
type PIDTarget struct {
	// PID is the host process, or 0 if none was recorded.
	PID int

	Signaler ProcessSignaler

	// SoftStop, if set, is invoked once at the soft deadline when the hard
	// deadline has not yet passed. Its outcome is ignored.
	SoftStop func()

	// Cleanup removes scratch resources. It must be safe to call repeatedly.
	Cleanup func()
}

func (t PIDTarget) cleanup() {
	if t.Cleanup != nil {
		t.Cleanup()
	}
}

// EnforcePID waits for the plan's deadlines and then signals the target's
// process group until it is gone or the cleanup deadline passes.
func EnforcePID(plan Plan, target PIDTarget, done DoneFunc) Result {
	return enforcePID(plan, target, done, realClock{})
}

func enforcePID(plan Plan, target PIDTarget, done DoneFunc, clk clock) Result {
	sched := newSchedule(plan, clk.Now())

	sleepUntilOrDone(clk, sched.Soft, done)
	if done() {
		return CompletedBeforeDeadline
	}

	if target.SoftStop != nil && clk.Now().Before(sched.Hard) {
		target.SoftStop()
	}

	sleepUntilOrDone(clk, sched.Hard, done)
	if done() {
		return CompletedBeforeDeadline
	}

	if target.PID <= 0 {
		target.cleanup()
		return CleanupTimeout
	}

	backoff := plan.Retry.Initial
	for {
		if done() {
			return CompletedBeforeDeadline
		}

		if target.Signaler.Gone(target.PID) {
			target.cleanup()
			return KilledAtHardDeadline
		}

		target.Signaler.Kill(target.PID, plan.HardSignal)
		target.cleanup()

		if !clk.Now().Before(sched.CleanupDeadline) {
			return CleanupTimeout
		}
		clk.Sleep(backoff)
		backoff = plan.Retry.next(backoff)
	}
}
