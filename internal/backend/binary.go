package backend

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/shlex"
)

// Binary is the executable a CLI backend invokes, with any prefix
// arguments (for example "sudo -n docker").
type Binary struct {
	Program string
	Args    []string
}

// ParseBinary splits a shell-like command string into a Binary.
func ParseBinary(s string) (Binary, error) {
	fields, err := shlex.Split(s)
	if err != nil {
		return Binary{}, fmt.Errorf("parse binary %q: %w", s, err)
	}
	if len(fields) == 0 {
		return Binary{}, errors.New("binary is empty")
	}
	return Binary{Program: fields[0], Args: fields[1:]}, nil
}

// MustParseBinary is ParseBinary for compile-time constants.
func MustParseBinary(s string) Binary {
	b, err := ParseBinary(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Command builds a CommandSpec invoking the binary with args appended to
// its prefix arguments.
func (b Binary) Command(timeout time.Duration, bestEffort bool, args ...string) CommandSpec {
	return CommandSpec{
		Program:    b.Program,
		Args:       append(slices.Clone(b.Args), args...),
		Timeout:    timeout,
		BestEffort: bestEffort,
	}
}

func (b Binary) String() string {
	return CommandSpec{Program: b.Program, Args: b.Args}.String()
}
