package instance

import (
	"time"

	"github.com/udisondev/worldcore/internal/model"
)

// Entries is the static description of one map difficulty as far as locking is concerned.
type Entries struct {
	MapID      uint32
	Difficulty uint8
	// ResetInterval is zero for difficulties without a reset schedule (normal dungeons).
	ResetInterval time.Duration
	// InstanceIDBound difficulties share one lock data record per instance id.
	InstanceIDBound    bool
	FlexLocking        bool
	UsesEncounterLocks bool
}

// HasResetSchedule reports whether locks of this map and difficulty expire on a global schedule.
func (e Entries) HasResetSchedule() bool { return e.ResetInterval > 0 }

func (e Entries) key() lockKey {
	return lockKey{mapID: e.MapID, difficulty: e.Difficulty}
}

type lockKey struct {
	mapID      uint32
	difficulty uint8
}

// LockData is the persisted progress of an instance.
type LockData struct {
	CompletedEncountersMask uint32
	Data                    string
	EntranceLocID           uint32
}

// Lock binds an owner (player or group) to an instance of a map difficulty.
type Lock struct {
	Owner      model.GUID
	MapID      uint32
	Difficulty uint8
	InstanceID uint32
	Expiry     time.Time
	Extended   bool

	// Data points to the shared record for instance-id-bound difficulties.
	Data *LockData
	// Shared reports whether Data is a shared per-instance record.
	Shared bool
}

// IsExpired reports whether the lock ran out and was not extended.
func (l *Lock) IsExpired(now time.Time) bool {
	return !now.Before(l.Expiry)
}

// EffectiveExpiry is the expiry taking extension into account.
func (l *Lock) EffectiveExpiry(e Entries) time.Time {
	if l.Extended {
		return l.Expiry.Add(e.ResetInterval)
	}
	return l.Expiry
}

// UpdateEvent describes a lock change caused by encounter completion.
type UpdateEvent struct {
	InstanceID uint32
	NewData    string
	// EncounterBit is the bit of the completed encounter, or -1 for a pure data update.
	EncounterBit  int
	EntranceLocID uint32
}

// TransferAbort is the lock-related reason an owner cannot join an instance.
type TransferAbort uint8

const (
	AbortNone TransferAbort = iota
	AbortLockedToDifferentInstance
	AbortAlreadyCompletedEncounter
)

func (a TransferAbort) String() string {
	switch a {
	case AbortLockedToDifferentInstance:
		return "locked to different instance"
	case AbortAlreadyCompletedEncounter:
		return "already completed encounter"
	default:
		return "none"
	}
}

// LockRow is the persisted form of a player lock.
type LockRow struct {
	Owner      uint64
	MapID      uint32
	Difficulty uint8
	InstanceID uint32
	LockData
	Expiry   time.Time
	Extended bool
}

// SharedRow is the persisted form of shared instance data.
type SharedRow struct {
	InstanceID uint32
	LockData
}
