package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when an order does not exist, is owned by
	// someone else, or has been cancelled.
	ErrNotFound = errors.New("order not found")

	// ErrConflict is returned when an order with the given ID already exists.
	ErrConflict = errors.New("order already exists")

	// ErrCancelled is returned when cancelling an order twice.
	ErrCancelled = errors.New("order already cancelled")
)
