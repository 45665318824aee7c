package world

import (
	"context"
	"time"

	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

// NoticeKind enumerates map messages delivered to a player session.
type NoticeKind uint8

const (
	NoticeResetFailed NoticeKind = iota + 1
	NoticeInstanceExpired
	NoticePendingBind
	NoticeInstanceBound
)

// Notice is a map message for one player.
type Notice struct {
	Kind          NoticeKind
	MapID         uint32
	InstanceID    uint32
	CompletedMask uint32
	Delay         time.Duration
	Extending     bool
	WarningOnly   bool
}

// Session is the network side of a player.
type Session interface {
	Update(diff time.Duration)
	Notify(n Notice)
}

// Behavior drives an object when its cell is near a player or an active object.
type Behavior interface {
	Update(o *Object, diff time.Duration)
}

// VisibilitySink receives visibility changes computed by the relocation pass.
type VisibilitySink interface {
	ObjectAppeared(viewer, obj model.GUID)
	ObjectDisappeared(viewer, obj model.GUID)
}

// UpdateSink receives the objects whose state changed during a tick.
type UpdateSink interface {
	FlushObjectUpdates(mapID, instanceID uint32, objects []model.GUID)
}

// ConditionEvaluator decides whether a spawn group should be active on a map.
type ConditionEvaluator interface {
	SpawnGroupConditionsMet(mapID, instanceID, groupID uint32) bool
}

// EntryPointSender teleports players out of a map that is being torn down.
type EntryPointSender interface {
	SendToEntryPoint(p *Player, from uint32)
}

// TransportEventSink receives path events fired by transports on the map.
type TransportEventSink interface {
	TransportEvent(mapID uint32, transport model.GUID, eventID uint32)
}

// RespawnStore persists respawn rows.
type RespawnStore interface {
	LoadRespawns(ctx context.Context, mapID, instanceID uint32) ([]spawn.RespawnRecord, error)
	SaveRespawn(rec spawn.RespawnRecord)
	DeleteRespawn(t spawn.Type, spawnID uint64, mapID, instanceID uint32)
	DeleteInstanceRespawns(mapID, instanceID uint32)
}

// InstanceScript is the scripted state of an instance map.
type InstanceScript interface {
	Create()
	Load(data string) error
	Update(diff time.Duration)
	OnPlayerEnter(guid model.GUID)
	SaveData() string
	SetCompletedEncountersMask(mask uint32)
	IsEncounterInProgress() bool
	Close()
}

// ScriptFactory builds the instance script named by a map entry.
// It receives the map as the encounter completion sink.
type ScriptFactory func(name string, m *Map) (InstanceScript, error)

// PlayerGroup is the party a player belongs to, as seen by map creation.
type PlayerGroup interface {
	GUID() model.GUID
	Difficulty(mapID uint32) uint8
	RecentInstance(mapID uint32) (owner model.GUID, instanceID uint32)
	SetRecentInstance(mapID uint32, owner model.GUID, instanceID uint32)
}
