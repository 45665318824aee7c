package world

import (
	"time"

	"github.com/udisondev/worldcore/internal/instance"
)

// MapKind selects the lifecycle rules of a map.
type MapKind uint8

const (
	KindCommon MapKind = iota
	KindDungeon
	KindRaid
	KindBattleground
	KindArena
	KindGarrison
)

func (k MapKind) String() string {
	switch k {
	case KindCommon:
		return "common"
	case KindDungeon:
		return "dungeon"
	case KindRaid:
		return "raid"
	case KindBattleground:
		return "battleground"
	case KindArena:
		return "arena"
	case KindGarrison:
		return "garrison"
	default:
		return "unknown"
	}
}

// ParseMapKind is the inverse of MapKind.String.
func ParseMapKind(s string) (MapKind, bool) {
	for k := KindCommon; k <= KindGarrison; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindCommon, false
}

// IsDungeon reports dungeons and raids.
func (k MapKind) IsDungeon() bool { return k == KindDungeon || k == KindRaid }

// IsRaid reports raids only.
func (k MapKind) IsRaid() bool { return k == KindRaid }

// IsBattlegroundOrArena reports PvP maps.
func (k MapKind) IsBattlegroundOrArena() bool { return k == KindBattleground || k == KindArena }

// Instanceable kinds get an instance id other than 0 or a team id.
func (k MapKind) Instanceable() bool {
	return k.IsDungeon() || k.IsBattlegroundOrArena() || k == KindGarrison
}

// DifficultyEntry describes one difficulty of a map.
type DifficultyEntry struct {
	ID         uint8
	MaxPlayers int
	// ResetInterval is zero for difficulties that never reset.
	ResetInterval      time.Duration
	UsesEncounterLocks bool
	InstanceIDBound    bool
}

// Entry is the static description of a map.
type Entry struct {
	ID   uint32
	Name string
	Kind MapKind
	// ParentID shares terrain with another map, -1 for none.
	ParentID     int32
	FactionSplit bool
	FlexLocking  bool
	ScriptName   string
	Difficulties []DifficultyEntry
}

// Difficulty returns difficulty d, falling back to the first defined one.
func (e *Entry) Difficulty(d uint8) (DifficultyEntry, bool) {
	for _, de := range e.Difficulties {
		if de.ID == d {
			return de, true
		}
	}
	if len(e.Difficulties) > 0 {
		return e.Difficulties[0], false
	}
	return DifficultyEntry{ID: d}, false
}

// LockEntries builds the instance-lock view of difficulty d.
func (e *Entry) LockEntries(d uint8) instance.Entries {
	de, _ := e.Difficulty(d)
	return instance.Entries{
		MapID:              e.ID,
		Difficulty:         de.ID,
		ResetInterval:      de.ResetInterval,
		InstanceIDBound:    de.InstanceIDBound,
		FlexLocking:        e.FlexLocking,
		UsesEncounterLocks: de.UsesEncounterLocks,
	}
}

// IsContinent reports whether the map is a shared open-world map.
func (e *Entry) IsContinent() bool { return e.Kind == KindCommon }
