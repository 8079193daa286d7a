package backend

// Signal is the abstract termination signal carried by a kill plan.
// Backends translate it into their own spelling.
type Signal int

const (
	SignalTerm Signal = iota
	SignalKill
)

func (s Signal) String() string {
	switch s {
	case SignalTerm:
		return "TERM"
	case SignalKill:
		return "KILL"
	default:
		return "UNKNOWN"
	}
}
