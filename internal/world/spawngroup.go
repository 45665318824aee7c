package world

import (
	"fmt"
	"log/slog"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/spawn"
)

func (m *Map) spawnGroup(groupID uint32) (*spawn.Group, error) {
	g := m.spawns.Group(groupID)
	if g == nil {
		return nil, fmt.Errorf("spawn group %d: %w", groupID, ErrUnknownSpawnGroup)
	}
	if g.Has(spawn.GroupFlagSystem) {
		return nil, fmt.Errorf("spawn group %d: %w", groupID, ErrSystemSpawnGroup)
	}
	return g, nil
}

// IsSpawnGroupActive reports whether spawns of the group are processed on this map.
// Manual-spawn groups are active only when toggled; other groups unless toggled.
func (m *Map) IsSpawnGroupActive(groupID uint32) bool {
	g := m.spawns.Group(groupID)
	if g == nil {
		slog.Error("activity check of unknown spawn group", "map", m.ID(), "group", groupID)
		return false
	}
	if g.Has(spawn.GroupFlagSystem) {
		return true
	}
	m.groupMu.RLock()
	_, toggled := m.toggledGroups[groupID]
	m.groupMu.RUnlock()
	return toggled != g.Has(spawn.GroupFlagManualSpawn)
}

// SetSpawnGroupActive switches processing of a group without spawning or despawning anything.
func (m *Map) SetSpawnGroupActive(groupID uint32, active bool) error {
	g, err := m.spawnGroup(groupID)
	if err != nil {
		slog.Error("spawn group toggle refused", "map", m.ID(), "group", groupID, "error", err)
		return err
	}
	m.groupMu.Lock()
	if active != !g.Has(spawn.GroupFlagManualSpawn) {
		m.toggledGroups[groupID] = struct{}{}
	} else {
		delete(m.toggledGroups, groupID)
	}
	m.groupMu.Unlock()
	return nil
}

// SpawnGroupSpawn activates a group and spawns every member not already present.
// ignoreRespawn and force clear pending respawns first; force also spawns over live copies.
// It returns the spawned objects.
func (m *Map) SpawnGroupSpawn(groupID uint32, ignoreRespawn, force bool) ([]*Object, error) {
	g, err := m.spawnGroup(groupID)
	if err != nil {
		slog.Error("spawn group spawn refused", "map", m.ID(), "group", groupID, "error", err)
		return nil, err
	}
	if err := m.SetSpawnGroupActive(groupID, true); err != nil {
		return nil, err
	}

	var toSpawn []*spawn.Data
	for _, d := range m.spawns.GroupMembers(groupID) {
		if d.MapID != g.MapID || !d.Type.HasRespawn() {
			continue
		}
		if force || ignoreRespawn {
			m.RemoveRespawnTime(d.Type, d.SpawnID, false)
		}
		if !m.GetRespawnTime(d.Type, d.SpawnID).IsZero() {
			continue
		}
		if !force && m.hasLiveCopy(d) {
			continue
		}
		toSpawn = append(toSpawn, d)
	}

	var spawned []*Object
	for _, d := range toSpawn {
		if !d.SpawnsIn(m.difficulty) || d.PersonalPhase != 0 {
			continue
		}
		if !m.IsGridLoaded(cell.ComputeGridCoord(d.Position.X, d.Position.Y)) {
			continue
		}
		o, err := m.spawnObject(d)
		if err != nil {
			slog.Warn("spawn group member not spawned", "map", m.ID(), "group", groupID, "spawnID", d.SpawnID, "error", err)
			continue
		}
		spawned = append(spawned, o)
	}
	slog.Debug("spawn group spawned", "map", m.ID(), "group", groupID, "spawned", len(spawned))
	return spawned, nil
}

func (m *Map) hasLiveCopy(d *spawn.Data) bool {
	for _, o := range m.ObjectsBySpawnID(d.Type, d.SpawnID) {
		if d.Type != spawn.TypeCreature || o.IsAlive() {
			return true
		}
	}
	return false
}

// SpawnGroupDespawn removes every live member of a group and deactivates it.
// It returns the number of objects scheduled for removal.
func (m *Map) SpawnGroupDespawn(groupID uint32, deleteRespawnTimes bool) (int, error) {
	if _, err := m.spawnGroup(groupID); err != nil {
		slog.Error("spawn group despawn refused", "map", m.ID(), "group", groupID, "error", err)
		return 0, err
	}

	var toUnload []*Object
	for _, d := range m.spawns.GroupMembers(groupID) {
		if deleteRespawnTimes {
			m.RemoveRespawnTime(d.Type, d.SpawnID, false)
		}
		toUnload = append(toUnload, m.ObjectsBySpawnID(d.Type, d.SpawnID)...)
	}
	for _, o := range toUnload {
		m.AddObjectToRemoveList(o.guid)
	}
	if err := m.SetSpawnGroupActive(groupID, false); err != nil {
		return len(toUnload), err
	}
	slog.Debug("spawn group despawned", "map", m.ID(), "group", groupID, "objects", len(toUnload))
	return len(toUnload), nil
}

// UpdateSpawnGroupConditions reconciles every group of the map with its conditions.
func (m *Map) UpdateSpawnGroupConditions() {
	if m.conditions == nil {
		return
	}
	for _, id := range m.spawns.GroupsForMap(m.ID()) {
		g := m.spawns.Group(id)
		if g == nil || g.Has(spawn.GroupFlagSystem) {
			continue
		}
		isActive := m.IsSpawnGroupActive(id)
		shouldBeActive := m.conditions.SpawnGroupConditionsMet(m.ID(), m.instanceID, id)

		if g.Has(spawn.GroupFlagManualSpawn) {
			if isActive && !shouldBeActive && g.Has(spawn.GroupFlagDespawnOnConditionFailure) {
				_, _ = m.SpawnGroupDespawn(id, true)
			}
			continue
		}
		if isActive == shouldBeActive {
			continue
		}
		switch {
		case shouldBeActive:
			_, _ = m.SpawnGroupSpawn(id, false, false)
		case g.Has(spawn.GroupFlagDespawnOnConditionFailure):
			_, _ = m.SpawnGroupDespawn(id, true)
		default:
			_ = m.SetSpawnGroupActive(id, false)
		}
	}
}
