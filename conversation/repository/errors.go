package repository

import "errors"

var (
	// ErrEmptyContent is returned for content that is blank after trimming.
	// Callers treat it as a silent no-op.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrReservedAuthor is returned when a participant posts as the facilitator
	ErrReservedAuthor = errors.New("author is reserved for the facilitator")
	// ErrClaimLost means the caller no longer owns the crossing it tried to finish
	ErrClaimLost = errors.New("crossing claim lost")
)
