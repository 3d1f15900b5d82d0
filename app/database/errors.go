package database

import "errors"

var (
	// ErrNotFound is returned when a subscription or queue item id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when an operator action is not valid
	// for the item's current status (e.g. skipping a processing item).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateVideo is returned when enqueueing a video that already has
	// a live queue item.
	ErrDuplicateVideo = errors.New("video already queued")
)
