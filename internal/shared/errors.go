package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrLocked indicates a reconciliation is already in flight for the subject.
	ErrLocked = errors.New("reconciliation in progress")
	// ErrInvalidToken indicates bearer-token authentication failure.
	ErrInvalidToken = errors.New("invalid token")
)
