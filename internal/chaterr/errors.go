// Package chaterr defines the error taxonomy shared by the coordinator and
// its transports. Callers branch with errors.Is against the sentinels; the
// constructors attach context while keeping the sentinel in the chain.
package chaterr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an absent room, user, or membership.
	ErrNotFound = errors.New("not found")

	// ErrPersistence marks a durable-store failure. Operations abort before
	// any fan-out when they hit one.
	ErrPersistence = errors.New("persistence failure")

	// ErrTransport marks an unreachable connection during fan-out. Always
	// isolated per target, never propagated to the originating call.
	ErrTransport = errors.New("transport failure")
)

func Validationf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...))
}

func NotFoundf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, a...))
}

// Persistence wraps a store error, keeping both the cause and the sentinel
// visible to errors.Is.
func Persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// Transport wraps a per-connection delivery error.
func Transport(connID string, err error) error {
	return fmt.Errorf("connection %s: %w: %w", connID, ErrTransport, err)
}
