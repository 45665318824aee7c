package catalog

import "errors"

var (
	ErrDuplicateMap     = errors.New("duplicate map entry")
	ErrUnknownMapKind   = errors.New("unknown map kind")
	ErrUnknownSpawnType = errors.New("unknown spawn type")
	ErrUnknownGroupFlag = errors.New("unknown spawn group flag")
)
