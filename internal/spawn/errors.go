package spawn

import "errors"

// Sentinel errors for spawn content.
var (
	ErrInvalidType      = errors.New("invalid spawn type")
	ErrZeroSpawnID      = errors.New("zero spawn id")
	ErrInvalidPosition  = errors.New("spawn position outside the map lattice")
	ErrUnknownGroup     = errors.New("unknown spawn group")
	ErrGroupMapMismatch = errors.New("spawn group belongs to another map")
	ErrDuplicateSpawn   = errors.New("duplicate spawn id")
	ErrSpawnNotFound    = errors.New("spawn not found")
	ErrUnknownPool      = errors.New("unknown pool")
)
