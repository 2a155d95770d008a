package store

import "errors"

// Common errors for store operations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable indicates the underlying database could not be
	// reached or the query failed. Callers treat this as fatal for the
	// current operation.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")
)
