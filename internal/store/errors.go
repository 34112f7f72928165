package store

import "errors"

// Sentinel errors shared by every store implementation.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrStaleWrite means a conditional write lost a race. Callers re-read
	// and retry.
	ErrStaleWrite = errors.New("stale write")
)
