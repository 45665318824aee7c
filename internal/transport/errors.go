package transport

import "errors"

var (
	ErrTooFewNodes  = errors.New("transport path needs at least two nodes per leg")
	ErrInvalidSpeed = errors.New("transport speed must be positive")
	ErrEmptyPath    = errors.New("transport path has zero duration")
	ErrUnknownEntry = errors.New("unknown transport entry")
)
