package procsig

import "github.com/seantiz/reaper/internal/backend"

// Signaler implements the kill plan's process signaler against the host.
type Signaler struct{}

// Gone reports whether both pid and its process group are confirmed absent.
func (Signaler) Gone(pid int) bool { return Gone(pid) }

// Kill sends sig to the process group of pid and then to pid itself.
func (Signaler) Kill(pid int, sig backend.Signal) { Kill(pid, sig) }
