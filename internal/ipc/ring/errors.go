package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrSupervisorGone tells a producer to stop: the supervisor has shut down
	ErrSupervisorGone = errors.New("ring: supervisor is gone")

	// ErrMalformedFrame reports an END sentinel with no matching START
	ErrMalformedFrame = errors.New("ring: malformed frame")

	// ErrInvalidPayload reports a payload containing a sentinel byte
	ErrInvalidPayload = errors.New("ring: payload contains a sentinel byte")

	ErrBadMagic    = errors.New("ring: region has an unknown layout")
	ErrBadCapacity = errors.New("ring: invalid capacity")
)

// SetupError reports a region or semaphore that could not be created or attached
type SetupError struct {
	Object string
	Op     string
	Err    error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("ring setup: %s %s: %v", e.Op, e.Object, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// SyncError reports a semaphore operation that failed at the OS level
type SyncError struct {
	Primitive string
	Op        string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("ring sync: %s %s: %v", e.Op, e.Primitive, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
