//go:build !unix

package procsig

import "github.com/seantiz/reaper/internal/backend"

// Gone cannot confirm absence on this platform and always reports false.
func Gone(int) bool { return false }

// Kill is a no-op on this platform.
func Kill(int, backend.Signal) {}
