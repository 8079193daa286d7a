package killplan

import "github.com/seantiz/reaper/internal/backend"

// RunFunc executes one command. Implementations enforce the command's
// timeout and cap captured output.
type RunFunc func(backend.CommandSpec) backend.ExecResult

// DoneFunc reports whether the workload has been observed to exit on its
// own. It is the only way to cancel an enforcement.
type DoneFunc func() bool

// Enforce drives b through soft-stop, hard-kill and cleanup according to
// plan. It polls done at every iteration and returns as soon as it is true.
func Enforce(plan Plan, b backend.Backend, run RunFunc, done DoneFunc) Result {
	return enforce(plan, b, run, done, realClock{})
}

func enforce(plan Plan, b backend.Backend, run RunFunc, done DoneFunc, clk clock) Result {
	sched := newSchedule(plan, clk.Now())

	softDone := false
	hardDone := false
	backoff := plan.Retry.Initial

	for {
		if done() {
			return CompletedBeforeDeadline
		}

		now := clk.Now()

		if !softDone && now.Before(sched.Soft) {
			clk.Sleep(pollInterval(sched.Soft.Sub(now)))
			continue
		}

		if probe := b.BuildProbe(plan.Target, plan.OpTimeout); probe != nil {
			probe.Phase = backend.PhaseProbe
			if run(*probe).TargetGone() {
				if hardDone {
					return KilledAtHardDeadline
				}
				return CompletedBeforeDeadline
			}
		}

		// Soft-stop only inside [soft, hard); once hard has passed it is skipped.
		if !softDone && now.Before(sched.Hard) {
			seq := b.BuildSoftStop(plan.Target, plan.SoftSignal, plan.Grace, plan.OpTimeout)
			runSequence(clk, sched, backend.PhaseSoft, seq, run)
			softDone = true
		}

		// The hard-kill result is not inspected; cleanup and the next
		// probe decide the outcome.
		if !hardDone && !now.Before(sched.Hard) {
			seq := b.BuildHardKill(plan.Target, plan.HardSignal, plan.OpTimeout)
			runSequence(clk, sched, backend.PhaseHard, seq, run)
			hardDone = true
			backoff = plan.Retry.Initial
		}

		if hardDone {
			runSequence(clk, sched, backend.PhaseCleanup, b.BuildCleanup(plan.Target, plan.OpTimeout), run)
			if !clk.Now().Before(sched.CleanupDeadline) {
				return CleanupTimeout
			}
			clk.Sleep(backoff)
			backoff = plan.Retry.next(backoff)
			continue
		}

		next := sched.Hard
		if !softDone {
			next = sched.Soft
		}
		clk.Sleep(pollInterval(next.Sub(now)))
	}
}
