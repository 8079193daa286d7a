//go:build unix

package procsig

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/seantiz/reaper/internal/backend"
)

// Gone probes pid and -pid with signal 0. Only ESRCH from both counts as
// gone; EPERM or success means something is still there.
func Gone(pid int) bool {
	if pid <= 0 {
		return false
	}
	return absent(unix.Kill(pid, 0)) && absent(unix.Kill(-pid, 0))
}

func absent(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

// Kill signals the group first so children that outlive the leader are
// not missed. Errors are ignored.
func Kill(pid int, sig backend.Signal) {
	if pid <= 0 {
		return
	}
	s := toUnix(sig)
	_ = unix.Kill(-pid, s)
	_ = unix.Kill(pid, s)
}

func toUnix(sig backend.Signal) unix.Signal {
	switch sig {
	case backend.SignalTerm:
		return unix.SIGTERM
	default:
		return unix.SIGKILL
	}
}
