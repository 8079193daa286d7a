package killplan

import "time"

// Bounds for every sleep between poll iterations.
const (
	minPollInterval = time.Millisecond
	maxPollInterval = 250 * time.Millisecond
)

// Schedule holds a plan's deadlines as monotonic instants. It is computed
// once per enforcement and passed by value so wall-clock adjustments
// during the run cannot reorder phases.
type Schedule struct {
	Soft            time.Time
	Hard            time.Time
	CleanupDeadline time.Time
}

// newSchedule anchors the plan's wall-clock deadlines to now. Deadlines
// already in the past map to now.
func newSchedule(p Plan, now time.Time) Schedule {
	wall := now.Round(0)
	at := func(deadline time.Time) time.Time {
		return now.Add(max(deadline.Sub(wall), 0))
	}
	return Schedule{
		Soft:            at(p.SoftAt),
		Hard:            at(p.HardAt),
		CleanupDeadline: at(p.CleanupDeadline),
	}
}

// pollInterval clamps the time left before a deadline to the poll bounds.
func pollInterval(d time.Duration) time.Duration {
	return min(max(d, minPollInterval), maxPollInterval)
}
