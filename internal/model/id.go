package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string used to identify a reap.
func NewID() string {
	return ulid.Make().String()
}
