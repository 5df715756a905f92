package devicestore

import "errors"

var (
	// ErrWriteFailed wraps any failed insert, update, or delete.
	ErrWriteFailed = errors.New("device store write failed")
	// ErrNotFound reports a reference to a device that is not stored.
	ErrNotFound = errors.New("device not found")
)
