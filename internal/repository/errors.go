package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("entity already exists")

	// ErrStaleVersion is returned when a compare-and-swap update finds a
	// different version than the one the caller read, or when the database
	// aborts the transaction because of a conflicting concurrent write.
	ErrStaleVersion = errors.New("stale version")

	// ErrLockTimeout is returned when a row lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock wait timeout")
)
