// Package id generates identifiers for audit runs and repair journal entries.
// UUIDv7 is time-ordered, so journal rows sort by creation without a
// separate index.
package id

import (
	"github.com/google/uuid"
)

// New returns a UUIDv7 string.
func New() string {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v.String()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
