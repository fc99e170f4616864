package audit

import "errors"

var (
	// ErrInvalidEntry is returned when an entry lacks a source or action type.
	ErrInvalidEntry = errors.New("audit: invalid entry")
)
