package tracker

import "errors"

// Validation failures.  Handlers map all of them to 400.
var (
	ErrEmptyTitle   = errors.New("title is required")
	ErrTitleTooLong = errors.New("title is too long")
	ErrInvalidColor = errors.New("invalid color")
	ErrNoChanges    = errors.New("no changes")
	ErrInvalidRange = errors.New("invalid range")
)
