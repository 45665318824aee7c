package terrain

import "errors"

var (
	ErrTruncated  = errors.New("terrain data truncated")
	ErrBadMagic   = errors.New("bad file magic")
	ErrBadVersion = errors.New("unsupported file version")
)
