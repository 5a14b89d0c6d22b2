// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure raised by the library unwraps to exactly one of these.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrPolicyViolation = errors.New("policy violation")
	ErrDeserialization = errors.New("deserialization failed")
)

// Error is a typed failure carrying the entity kind and key it concerns.
type Error struct {
	Kind   error
	Entity string
	Key    string
	Reason string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Entity != "" {
		msg += ": " + e.Entity
		if e.Key != "" {
			msg += fmt.Sprintf(" %q", e.Key)
		}
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// InvalidArgument reports a malformed or empty input field.
func InvalidArgument(field, reason string) *Error {
	return &Error{Kind: ErrInvalidArgument, Entity: field, Reason: reason}
}

// DuplicateKey reports a uniqueness violation on insert.
func DuplicateKey(entity, key string) *Error {
	return &Error{Kind: ErrDuplicateKey, Entity: entity, Key: key}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(entity, key string) *Error {
	return &Error{Kind: ErrNotFound, Entity: entity, Key: key}
}

// InvalidState reports an operation that is not valid for the current derived status.
func InvalidState(entity, key, reason string) *Error {
	return &Error{Kind: ErrInvalidState, Entity: entity, Key: key, Reason: reason}
}

// PolicyViolation reports a borrowing or rate policy limit being hit.
func PolicyViolation(entity, key, reason string) *Error {
	return &Error{Kind: ErrPolicyViolation, Entity: entity, Key: key, Reason: reason}
}

// Deserialization reports corrupt or malformed persisted data.
func Deserialization(reason string, cause error) error {
	e := &Error{Kind: ErrDeserialization, Reason: reason}
	if cause == nil {
		return e
	}
	return fmt.Errorf("%w: %w", e, cause)
}

// KindOf returns the error kind err unwraps to, or nil if it is not a library error.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInvalidArgument,
		ErrDuplicateKey,
		ErrNotFound,
		ErrInvalidState,
		ErrPolicyViolation,
		ErrDeserialization,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
