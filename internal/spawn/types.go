package spawn

import (
	"time"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
)

// Type is the kind of persisted spawn.
type Type uint8

const (
	TypeCreature Type = iota
	TypeGameObject
	TypeAreaTrigger

	NumTypes
)

func (t Type) String() string {
	switch t {
	case TypeCreature:
		return "creature"
	case TypeGameObject:
		return "gameobject"
	case TypeAreaTrigger:
		return "areatrigger"
	default:
		return "unknown"
	}
}

// IsValid reports whether t is a known spawn type.
func (t Type) IsValid() bool {
	return t < NumTypes
}

// HasRespawn reports whether spawns of this type are tracked by the respawn schedule.
func (t Type) HasRespawn() bool {
	return t == TypeCreature || t == TypeGameObject
}

// ObjectType maps the spawn type to the runtime object type.
func (t Type) ObjectType() model.ObjectType {
	switch t {
	case TypeCreature:
		return model.TypeCreature
	case TypeGameObject:
		return model.TypeGameObject
	case TypeAreaTrigger:
		return model.TypeAreaTrigger
	default:
		return model.TypeNone
	}
}

// Key identifies one spawn.
type Key struct {
	Type    Type
	SpawnID uint64
}

// GroupFlags control how a spawn group is activated.
type GroupFlags uint32

const (
	GroupFlagSystem GroupFlags = 1 << iota
	GroupFlagCompatibilityMode
	GroupFlagManualSpawn
	GroupFlagDynamicSpawnRate
	GroupFlagEscortQuestNpc
	GroupFlagDespawnOnConditionFailure
)

// SystemGroupID is the implicit group of every spawn without an explicit group.
const SystemGroupID = 0

// Group is a named set of spawns togglable as a unit.
type Group struct {
	ID    uint32
	Name  string
	MapID uint32
	Flags GroupFlags
}

// Has reports whether all bits of f are set.
func (g *Group) Has(f GroupFlags) bool {
	return g.Flags&f == f
}

// AnyDifficulty marks spawns present in every difficulty of their map.
const AnyDifficulty uint8 = 0xFF

// Metadata is the part of a spawn shared by all spawn types.
type Metadata struct {
	Type    Type
	SpawnID uint64
	MapID   uint32
	Group   *Group
}

// Key returns the spawn key.
func (m *Metadata) Key() Key {
	return Key{Type: m.Type, SpawnID: m.SpawnID}
}

// Data is the read-only spawn template.
type Data struct {
	Metadata

	GroupID       uint32
	Entry         uint32
	Position      model.Position
	Difficulties  []uint8 // empty = every difficulty
	PoolID        uint32
	PersonalPhase uint32 // non-zero: spawned only for owners of this personal phase
	RespawnDelay  time.Duration
	Active        bool
}

// SpawnsIn reports whether the spawn exists in the given difficulty.
func (d *Data) SpawnsIn(difficulty uint8) bool {
	if len(d.Difficulties) == 0 {
		return true
	}
	for _, diff := range d.Difficulties {
		if diff == difficulty {
			return true
		}
	}
	return false
}

// Cell returns the lattice cell of the spawn point.
func (d *Data) Cell() cell.CellCoord {
	return cell.ComputeCellCoord(d.Position.X, d.Position.Y)
}

// GridID returns the id of the grid holding the spawn point.
func (d *Data) GridID() uint32 {
	return cell.ComputeGridCoord(d.Position.X, d.Position.Y).ID()
}

// LinkedRespawn binds a spawn's respawn to its master's.
type LinkedRespawn struct {
	Spawn  Key
	Master Key
}

// Pool is a set of interchangeable spawns of which at most MaxLimit are live per map.
type Pool struct {
	ID       uint32
	MapID    uint32
	MaxLimit int
	Members  []Key
}
