package mapmgr

import "errors"

var (
	ErrInstanceIDExhausted = errors.New("instance id space exhausted")
	ErrUnknownMap          = errors.New("unknown map")
	ErrNoBattleground      = errors.New("player has no battleground assignment")
	ErrMapNotManaged       = errors.New("map not managed")
)
