package types

import "errors"

// Resolution failures. Backends wrap these so callers can match with errors.Is.
var (
	ErrRepositoryNotFound = errors.New("not inside a git repository")
	ErrHeadUnresolvable   = errors.New("head has no short branch or tag name")
	ErrDescribeFailed     = errors.New("cannot describe head")
	ErrClockUnavailable   = errors.New("wall clock unavailable")
)
