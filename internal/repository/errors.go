package repository

import "errors"

var (
	// ErrNotFound is returned when a channel does not exist.
	ErrNotFound = errors.New("channel not found")

	// ErrAlreadyFired is returned by UpdateSlotLastFired when another
	// writer has already recorded a firing for the same occurrence date.
	// Callers treat it as a benign skip, not a failure.
	ErrAlreadyFired = errors.New("slot already fired for this occurrence")
)
