package world

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

// StoppableBehavior is a Behavior holding transient state that must be dropped
// when its grid goes idle or unloads.
type StoppableBehavior interface {
	Behavior
	Stop(o *Object)
}

// gridCells calls fn for every lattice cell of g.
func gridCells(g *Grid, fn func(cell.CellCoord)) {
	low, high := g.coord.CellBounds()
	for x := low.X; x < high.X; x++ {
		for y := low.Y; y < high.Y; y++ {
			fn(cell.CellCoord{X: x, Y: y})
		}
	}
}

// loadGridObjects is the grid loader: it spawns every persisted spawn of g
// that should exist on this map and difficulty.
func (m *Map) loadGridObjects(g *Grid) int {
	loaded := 0
	gridCells(g, func(cc cell.CellCoord) {
		ids := m.spawns.CellSpawns(m.ID(), m.difficulty, cc.ID())
		for t := range spawn.NumTypes {
			for _, id := range ids.ByType(t) {
				d := m.spawns.Data(t, id)
				if d == nil || d.PersonalPhase != 0 || !d.SpawnsIn(m.difficulty) {
					continue
				}
				if !m.ShouldBeSpawnedOnGridLoad(t, id) {
					continue
				}
				if _, err := m.spawnObject(d); err != nil {
					slog.Warn("grid spawn skipped", "map", m.ID(), "type", t, "spawnID", id, "error", err)
					continue
				}
				loaded++
			}
		}
	})
	return loaded
}

// loadPersonalSpawns is the personal-phase loader: it spawns, for owner, the
// copies of phase-restricted spawns in g that the owner has not loaded yet.
func (m *Map) loadPersonalSpawns(g *Grid, owner *Player, phaseID uint32) int {
	if !m.phases.beginLoad(owner.guid, phaseID, g.ID()) {
		return 0
	}
	loaded := 0
	gridCells(g, func(cc cell.CellCoord) {
		ids := m.spawns.CellSpawns(m.ID(), m.difficulty, cc.ID())
		for t := range spawn.NumTypes {
			for _, id := range ids.ByType(t) {
				d := m.spawns.Data(t, id)
				if d == nil || d.PersonalPhase != phaseID || !d.SpawnsIn(m.difficulty) {
					continue
				}
				if !m.ShouldBeSpawnedOnGridLoad(t, id) {
					continue
				}
				if _, err := m.spawnPersonal(d, owner.guid, g.ID()); err != nil {
					slog.Warn("personal spawn skipped", "map", m.ID(), "owner", owner.guid, "spawnID", id, "error", err)
					continue
				}
				loaded++
			}
		}
	})
	return loaded
}

// loadPersonalPhasesForGrid runs the personal loader for every player owning a phase.
func (m *Map) loadPersonalPhasesForGrid(g *Grid) {
	for _, p := range m.Players() {
		for _, phaseID := range p.PersonalPhases() {
			m.loadPersonalSpawns(g, p, phaseID)
		}
	}
}

// stopGrid is the stopper: behaviors of every non-player object in g drop their state.
func (m *Map) stopGrid(g *Grid) {
	g.forEachObject(false, func(guid model.GUID) {
		o := m.Object(guid)
		if o == nil {
			return
		}
		if b, ok := o.getBehavior().(StoppableBehavior); ok {
			b.Stop(o)
		}
	})
}

// evacuateGrid is the evacuator: objects standing in g away from their home grid return home.
func (m *Map) evacuateGrid(g *Grid) {
	g.forEachObject(false, func(guid model.GUID) {
		if o := m.Object(guid); o != nil {
			m.respawnRelocation(o, true)
		}
	})
}

// cleanGrid is the cleaner: objects left in g lose their behaviors and activity
// so that nothing references the grid once it is gone.
func (m *Map) cleanGrid(g *Grid) []*Object {
	var objs []*Object
	for _, guid := range g.objectGUIDs() {
		o := m.Object(guid)
		if o == nil {
			continue
		}
		if o.IsPlayer() {
			slog.Error("player left in unloading grid", "map", m.ID(), "player", guid, "x", g.coord.X, "y", g.coord.Y)
			continue
		}
		o.SetBehavior(nil)
		m.RemoveFromActive(o)
		objs = append(objs, o)
	}
	slices.SortFunc(objs, func(a, b *Object) int { return compareGUID(a.guid, b.guid) })
	return objs
}

// unloadObjects is the unloader: cleaned objects leave the map.
func (m *Map) unloadObjects(objs []*Object) {
	for _, o := range objs {
		m.RemoveFromMap(o)
	}
}

// nonPlayerActiveInGrid reports whether an active non-player object stands in g.
func (m *Map) nonPlayerActiveInGrid(g *Grid) bool {
	for _, o := range m.activeObjects() {
		if o.Cell().Grid() == g.coord {
			return true
		}
	}
	return false
}

func (m *Map) playersInGrid(g *Grid) bool {
	for _, p := range m.Players() {
		if p.Cell().Grid() == g.coord {
			return true
		}
	}
	return false
}

// ActiveObjectsNearGrid reports whether a player or an active object stands
// within visibility range of g.
func (m *Map) ActiveObjectsNearGrid(g *Grid) bool {
	low, high := g.coord.CellBounds()
	n := int(math.Ceil(float64(m.vis.Distance) / cell.CellSize))
	area := cell.Area{
		Low:  low.DecX(n).DecY(n),
		High: high.DecX(1).DecY(1).IncX(n).IncY(n),
	}

	for _, p := range m.Players() {
		if area.Contains(p.Cell()) {
			return true
		}
	}
	for _, o := range m.activeObjects() {
		if area.Contains(o.Cell()) {
			return true
		}
	}
	return false
}

// UnloadGrid removes g and every object in it. Unless unloadAll is set it refuses
// while players, transports or active objects keep the grid in use.
func (m *Map) UnloadGrid(g *Grid, unloadAll bool) bool {
	if !unloadAll {
		if g.WorldObjectCount() > 0 || m.nonPlayerActiveInGrid(g) {
			return false
		}
		if m.ActiveObjectsNearGrid(g) {
			return false
		}
	}

	slog.Debug("unloading grid", "map", m.ID(), "instance", m.instanceID, "x", g.coord.X, "y", g.coord.Y)

	if !unloadAll {
		m.MoveAllInMoveList()
		m.evacuateGrid(g)
	}
	m.RemoveAllObjectsInRemoveList()
	m.stopGrid(g)
	objs := m.cleanGrid(g)
	m.RemoveAllObjectsInRemoveList()
	m.phases.purgeGrid(g.ID())
	m.unloadObjects(objs)

	idx := g.ID()
	m.gridLocks[idx].Lock()
	if m.grids[idx].CompareAndSwap(g, nil) {
		m.loadedGrids.Add(-1)
		m.metrics.GridUnloaded()
	}
	m.gridLocks[idx].Unlock()
	g.clear()

	if m.terrain != nil {
		m.terrain.UnloadGrid(g.coord.X, g.coord.Y)
	}
	slog.Debug("grid unloaded", "map", m.ID(), "instance", m.instanceID, "x", g.coord.X, "y", g.coord.Y, "objects", len(objs))
	return true
}

// updateGridState advances the lifecycle of one grid.
func (m *Map) updateGridState(g *Grid, diff time.Duration) {
	switch g.State() {
	case GridActive:
		g.mu.Lock()
		g.expiry.Update(diff)
		passed := g.expiry.Passed()
		g.mu.Unlock()
		if !passed {
			return
		}
		if !m.playersInGrid(g) && !m.ActiveObjectsNearGrid(g) {
			m.stopGrid(g)
			g.setState(GridIdle)
			slog.Debug("grid idle", "map", m.ID(), "x", g.coord.X, "y", g.coord.Y)
			return
		}
		m.ResetGridExpiry(g, 0.1)

	case GridIdle:
		m.ResetGridExpiry(g, 1)
		g.setState(GridRemoval)

	case GridRemoval:
		if g.HasUnloadLock() {
			return
		}
		g.mu.Lock()
		g.expiry.Update(diff)
		passed := g.expiry.Passed()
		g.mu.Unlock()
		if passed && !m.UnloadGrid(g, false) {
			m.ResetGridExpiry(g, 0.1)
		}
	}
}
