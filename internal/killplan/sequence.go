package killplan

import "github.com/seantiz/reaper/internal/backend"

// runSequence runs seq in order against the cleanup deadline. Each
// command's timeout is capped to the time remaining; once nothing remains
// the rest of the sequence is skipped. Results are discarded.
func runSequence(clk clock, sched Schedule, phase string, seq []backend.CommandSpec, run RunFunc) {
	for _, c := range seq {
		remaining := sched.CleanupDeadline.Sub(clk.Now())
		if remaining <= 0 {
			return
		}
		c.Timeout = min(c.Timeout, remaining)
		if c.Timeout <= 0 {
			return
		}
		c.Phase = phase
		_ = run(c)
	}
}
