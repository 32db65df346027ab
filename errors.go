package waypoint

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("waypoint: no store configured")
	ErrStoreClosed     = errors.New("waypoint: store closed")
	ErrMigrationFailed = errors.New("waypoint: migration failed")

	// Not found errors.
	ErrThreadNotFound = errors.New("waypoint: thread not found")
	ErrUnknownNode    = errors.New("waypoint: unknown node")

	// Conflict errors.
	ErrThreadAlreadyExists   = errors.New("waypoint: thread already exists")
	ErrNotWaitingForApproval = errors.New("waypoint: thread is not waiting for approval")

	// ErrStaleCheckpoint is returned by a store when a save does not carry
	// the sequence immediately following the stored one.
	ErrStaleCheckpoint = errors.New("waypoint: stale checkpoint")

	// State errors.
	ErrInvalidTransition = errors.New("waypoint: invalid state transition")
	ErrInvalidRegistry   = errors.New("waypoint: invalid node registry")

	// Worker errors.
	ErrPoolStopped = errors.New("waypoint: worker pool stopped")
)
