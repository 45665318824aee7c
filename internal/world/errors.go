package world

import "errors"

var (
	ErrMaxPlayers        = errors.New("map is full")
	ErrWrongInstance     = errors.New("bound to a different instance")
	ErrZoneInCombat      = errors.New("encounter in progress")
	ErrAlreadyCompleted  = errors.New("encounter already completed by player lock")
	ErrCannotEnter       = errors.New("cannot enter map")
	ErrAlreadyInMap      = errors.New("already in map")
	ErrInvalidPosition   = errors.New("position outside the map lattice")
	ErrNotInMap          = errors.New("object is not in map")
	ErrMapHasPlayers     = errors.New("map still has players")
	ErrUnknownSpawnGroup = errors.New("unknown spawn group")
	ErrSystemSpawnGroup  = errors.New("system spawn group cannot be toggled")
	ErrUnknownDifficulty = errors.New("difficulty not defined for map")
	ErrDuplicateObject   = errors.New("object already registered")
	ErrSpawnDataMissing  = errors.New("spawn data missing")
	ErrNotInstanceable   = errors.New("map kind has no instance state")
)
