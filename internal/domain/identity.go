// internal/domain/identity.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// IDGenerator issues opaque identifiers that are unique with overwhelming probability.
type IDGenerator interface {
	NewID() (string, error)
}

// IDGeneratorFunc adapts a plain function to IDGenerator.
type IDGeneratorFunc func() (string, error)

func (f IDGeneratorFunc) NewID() (string, error) {
	return f()
}

// UUIDGenerator issues random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Clock returns the current time. Tests inject fixed or stepping clocks.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}
