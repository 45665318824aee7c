package script

import "errors"

var (
	ErrUnknownScript = errors.New("unknown instance script")
	ErrScriptFailed  = errors.New("instance script failed")
)
