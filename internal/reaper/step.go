package reaper

import (
	"fmt"

	"github.com/seantiz/reaper/internal/backend"
)

// Step is one action taken while enforcing a plan, reported to observers.
type Step struct {
	Phase   string
	Command string

	// Executed is false for actions that are not external commands, such
	// as liveness checks and signals on the process path.
	Executed   bool
	ExitStatus int
	TimedOut   bool
	BestEffort bool

	// Err is set for hook failures on the process path.
	Err error
}

// Failed reports whether the step did not succeed.
func (s Step) Failed() bool {
	if s.Err != nil {
		return true
	}
	return s.Executed && (s.TimedOut || s.ExitStatus != 0)
}

// String renders the step as a single event line.
func (s Step) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("%s: %s", s.Command, s.Err)
	case !s.Executed:
		return s.Command
	case s.TimedOut:
		return fmt.Sprintf("%s (timed out)", s.Command)
	default:
		return fmt.Sprintf("%s (exit %d)", s.Command, s.ExitStatus)
	}
}

// Observer receives steps as they happen. Observers run on the enforcing
// goroutine and must not block.
type Observer func(Step)

func commandStep(c backend.CommandSpec, res backend.ExecResult) Step {
	return Step{
		Phase:      c.Phase,
		Command:    c.String(),
		Executed:   true,
		ExitStatus: res.ExitStatus,
		TimedOut:   res.TimedOut,
		BestEffort: c.BestEffort,
	}
}
