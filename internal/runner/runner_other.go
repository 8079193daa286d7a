//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func configureProcessGroup(*exec.Cmd) {}

func exitStatus(ps *os.ProcessState) int {
	if code := ps.ExitCode(); code >= 0 {
		return code
	}
	return 1
}
