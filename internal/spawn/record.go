package spawn

import "time"

// RespawnRecord is the persisted form of a pending respawn.
type RespawnRecord struct {
	Type        Type
	SpawnID     uint64
	RespawnTime int64 // unix seconds
	MapID       uint32
	InstanceID  uint32
}

// Due returns the respawn time as time.Time.
func (r RespawnRecord) Due() time.Time {
	return time.Unix(r.RespawnTime, 0)
}
