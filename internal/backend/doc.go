// Package backend defines the capability set every workload technology
// implements to be terminated: building soft-stop, hard-kill, cleanup and
// probe command sequences. It also holds the command types exchanged with
// the executor and the registry that maps backend tags to implementations.
package backend
