package instance

import "errors"

// Sentinel errors for the instance lock system.
var (
	ErrLockNotFound      = errors.New("instance lock not found")
	ErrNoResetSchedule   = errors.New("difficulty has no reset schedule")
	ErrSharedDataMissing = errors.New("shared instance data not found")
	ErrSharedMismatch    = errors.New("lock is not bound to the shared instance data")
	ErrNoStore           = errors.New("instance lock store not configured")
)
