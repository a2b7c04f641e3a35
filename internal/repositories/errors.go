package repositories

import "errors"

var (
	ErrNotFound = errors.New("record not found")

	// ErrNotClaimable is returned when a task is not in the status a transition requires.
	ErrNotClaimable = errors.New("task is not in a claimable status")
)
