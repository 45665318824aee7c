package spawn

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Source loads spawn content (database or static catalog).
type Source interface {
	LoadSpawnGroups(ctx context.Context) ([]Group, error)
	LoadSpawns(ctx context.Context) ([]Data, error)
	LoadLinkedRespawns(ctx context.Context) ([]LinkedRespawn, error)
	LoadPools(ctx context.Context) ([]Pool, error)
}

// CellGUIDs lists the spawn ids persisted in one cell, per type.
type CellGUIDs struct {
	Creatures    []uint64
	GameObjects  []uint64
	AreaTriggers []uint64
}

// ByType returns the ids for one spawn type.
func (c *CellGUIDs) ByType(t Type) []uint64 {
	switch t {
	case TypeCreature:
		return c.Creatures
	case TypeGameObject:
		return c.GameObjects
	case TypeAreaTrigger:
		return c.AreaTriggers
	default:
		return nil
	}
}

func (c *CellGUIDs) add(t Type, id uint64) {
	switch t {
	case TypeCreature:
		c.Creatures = append(c.Creatures, id)
	case TypeGameObject:
		c.GameObjects = append(c.GameObjects, id)
	case TypeAreaTrigger:
		c.AreaTriggers = append(c.AreaTriggers, id)
	}
}

type cellKey struct {
	mapID      uint32
	difficulty uint8
	cellID     uint32
}

// Store is the spawn-data service. Read-only after Load, safe for concurrent readers.
type Store struct {
	data        [NumTypes]map[uint64]*Data
	groups      map[uint32]*Group
	groupsByMap map[uint32][]uint32
	members     map[uint32][]*Data
	byCell      map[cellKey]*CellGUIDs
	linked      map[Key]Key
	pools       []Pool
}

// NewStore creates an empty store holding only the system group.
func NewStore() *Store {
	s := &Store{
		groups:      make(map[uint32]*Group, 16),
		groupsByMap: make(map[uint32][]uint32, 16),
		members:     make(map[uint32][]*Data, 16),
		byCell:      make(map[cellKey]*CellGUIDs, 1024),
		linked:      make(map[Key]Key),
	}
	for t := range NumTypes {
		s.data[t] = make(map[uint64]*Data, 256)
	}
	s.groups[SystemGroupID] = &Group{ID: SystemGroupID, Name: "system", Flags: GroupFlagSystem}
	return s
}

// Load fills the store from src. Invalid rows are skipped with a warning.
func (s *Store) Load(ctx context.Context, src Source) error {
	groups, err := src.LoadSpawnGroups(ctx)
	if err != nil {
		return fmt.Errorf("loading spawn groups: %w", err)
	}
	for _, g := range groups {
		s.AddGroup(g)
	}

	spawns, err := src.LoadSpawns(ctx)
	if err != nil {
		return fmt.Errorf("loading spawns: %w", err)
	}
	added := 0
	for i := range spawns {
		if err := s.AddSpawn(spawns[i]); err != nil {
			slog.Warn("spawn skipped", "type", spawns[i].Type, "spawnID", spawns[i].SpawnID, "error", err)
			continue
		}
		added++
	}

	links, err := src.LoadLinkedRespawns(ctx)
	if err != nil {
		return fmt.Errorf("loading linked respawns: %w", err)
	}
	for _, l := range links {
		if err := s.AddLinkedRespawn(l); err != nil {
			slog.Warn("linked respawn skipped", "spawn", l.Spawn.SpawnID, "master", l.Master.SpawnID, "error", err)
		}
	}

	pools, err := src.LoadPools(ctx)
	if err != nil {
		return fmt.Errorf("loading pools: %w", err)
	}
	s.pools = append(s.pools, pools...)

	slog.Info("spawn data loaded",
		"groups", len(s.groups),
		"spawns", added,
		"linked", len(s.linked),
		"pools", len(s.pools))
	return nil
}

// AddGroup registers a spawn group. The system group cannot be replaced.
func (s *Store) AddGroup(g Group) {
	if g.ID == SystemGroupID {
		return
	}
	grp := g
	s.groups[g.ID] = &grp
	s.groupsByMap[g.MapID] = append(s.groupsByMap[g.MapID], g.ID)
}

// AddSpawn indexes one spawn.
func (s *Store) AddSpawn(d Data) error {
	if !d.Type.IsValid() {
		return ErrInvalidType
	}
	if d.SpawnID == 0 {
		return ErrZeroSpawnID
	}
	if !d.Position.IsValid() {
		return ErrInvalidPosition
	}
	grp, ok := s.groups[d.GroupID]
	if !ok {
		return fmt.Errorf("group %d: %w", d.GroupID, ErrUnknownGroup)
	}
	if grp.ID != SystemGroupID && grp.MapID != d.MapID {
		return fmt.Errorf("group %d on map %d: %w", grp.ID, grp.MapID, ErrGroupMapMismatch)
	}
	if _, dup := s.data[d.Type][d.SpawnID]; dup {
		return ErrDuplicateSpawn
	}

	data := d
	data.Group = grp
	s.data[d.Type][d.SpawnID] = &data
	s.members[grp.ID] = append(s.members[grp.ID], &data)

	cellID := data.Cell().ID()
	if len(data.Difficulties) == 0 {
		s.cellEntry(data.MapID, AnyDifficulty, cellID).add(data.Type, data.SpawnID)
		return nil
	}
	for _, diff := range data.Difficulties {
		s.cellEntry(data.MapID, diff, cellID).add(data.Type, data.SpawnID)
	}
	return nil
}

// AddLinkedRespawn links a spawn to its master. Both must exist.
func (s *Store) AddLinkedRespawn(l LinkedRespawn) error {
	if s.Data(l.Spawn.Type, l.Spawn.SpawnID) == nil || s.Data(l.Master.Type, l.Master.SpawnID) == nil {
		return ErrSpawnNotFound
	}
	s.linked[l.Spawn] = l.Master
	return nil
}

func (s *Store) cellEntry(mapID uint32, difficulty uint8, cellID uint32) *CellGUIDs {
	k := cellKey{mapID: mapID, difficulty: difficulty, cellID: cellID}
	e, ok := s.byCell[k]
	if !ok {
		e = &CellGUIDs{}
		s.byCell[k] = e
	}
	return e
}

// Data returns the spawn template, or nil.
func (s *Store) Data(t Type, spawnID uint64) *Data {
	if !t.IsValid() {
		return nil
	}
	return s.data[t][spawnID]
}

// Metadata returns the spawn metadata, or nil.
func (s *Store) Metadata(t Type, spawnID uint64) *Metadata {
	d := s.Data(t, spawnID)
	if d == nil {
		return nil
	}
	return &d.Metadata
}

// CellSpawns returns the spawn ids of one cell for (map, difficulty).
func (s *Store) CellSpawns(mapID uint32, difficulty uint8, cellID uint32) CellGUIDs {
	var out CellGUIDs
	for _, diff := range []uint8{difficulty, AnyDifficulty} {
		e, ok := s.byCell[cellKey{mapID: mapID, difficulty: diff, cellID: cellID}]
		if !ok {
			continue
		}
		out.Creatures = append(out.Creatures, e.Creatures...)
		out.GameObjects = append(out.GameObjects, e.GameObjects...)
		out.AreaTriggers = append(out.AreaTriggers, e.AreaTriggers...)
		if difficulty == AnyDifficulty {
			break
		}
	}
	return out
}

// Group returns a spawn group, or nil.
func (s *Store) Group(id uint32) *Group {
	return s.groups[id]
}

// GroupsForMap returns the ids of the explicit groups placed on a map, in load order.
func (s *Store) GroupsForMap(mapID uint32) []uint32 {
	return slices.Clone(s.groupsByMap[mapID])
}

// GroupMembers returns the spawns belonging to a group.
func (s *Store) GroupMembers(groupID uint32) []*Data {
	return s.members[groupID]
}

// LinkedRespawn returns the master a spawn's respawn is linked to.
func (s *Store) LinkedRespawn(k Key) (Key, bool) {
	m, ok := s.linked[k]
	return m, ok
}

// Pools returns the pool definitions.
func (s *Store) Pools() []Pool {
	return s.pools
}

// Count returns the number of spawns of a type.
func (s *Store) Count(t Type) int {
	if !t.IsValid() {
		return 0
	}
	return len(s.data[t])
}
