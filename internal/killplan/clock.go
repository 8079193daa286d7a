package killplan

import "time"

// clock is the drivers' view of time. Tests substitute a fake.
type clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// sleepUntilOrDone sleeps in bounded increments until deadline or until
// done reports true.
func sleepUntilOrDone(clk clock, deadline time.Time, done DoneFunc) {
	for !done() {
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return
		}
		clk.Sleep(min(remaining, maxPollInterval))
	}
}
