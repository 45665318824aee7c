package world

import (
	"fmt"
	"log/slog"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
)

// Relocate moves an object. Moves inside the current cell apply immediately;
// moves across a cell or grid boundary are queued for MoveAllInMoveList.
func (m *Map) Relocate(guid model.GUID, pos model.Position) error {
	o := m.Object(guid)
	if o == nil {
		return fmt.Errorf("relocate %s: %w", guid, ErrNotInMap)
	}
	if !pos.IsValid() {
		slog.Warn("relocate: invalid position", "map", m.ID(), "guid", guid, "x", pos.X, "y", pos.Y, "z", pos.Z)
		return fmt.Errorf("relocate %s: %w", guid, ErrInvalidPosition)
	}
	newCell := cell.ComputeCellCoord(pos.X, pos.Y)

	o.mu.Lock()
	if !o.inWorld {
		o.mu.Unlock()
		return fmt.Errorf("relocate %s: %w", guid, ErrNotInMap)
	}
	if newCell != o.cell {
		queue := o.moveState == moveNone
		o.newPos = pos
		o.moveState = moveActive
		o.mu.Unlock()
		if queue {
			m.moveMu.Lock()
			m.moveList = append(m.moveList, o)
			m.moveMu.Unlock()
		}
		return nil
	}
	o.pos = pos
	if o.moveState == moveActive {
		o.moveState = moveInactive
	}
	o.mu.Unlock()

	m.afterMove(o)
	return nil
}

func (m *Map) afterMove(o *Object) {
	o.setNotify()
	m.markChanged(o.guid)
	m.spatial.update(o)
}

// PendingMoves returns the number of queued cross-cell moves.
func (m *Map) PendingMoves() int {
	m.moveMu.Lock()
	defer m.moveMu.Unlock()
	return len(m.moveList)
}

// MoveAllInMoveList applies queued moves. Only one caller may run it at a time:
// the tick goroutine or the grid unloader.
func (m *Map) MoveAllInMoveList() {
	for {
		m.moveMu.Lock()
		list := m.moveList
		m.moveList = nil
		m.moveMu.Unlock()
		if len(list) == 0 {
			return
		}
		for _, o := range list {
			m.applyMove(o)
		}
	}
}

func (m *Map) applyMove(o *Object) {
	o.mu.Lock()
	state := o.moveState
	o.moveState = moveNone
	target := o.newPos
	inWorld := o.inWorld
	o.mu.Unlock()

	if state != moveActive || !inWorld || m.Object(o.guid) != o {
		return
	}

	if m.cellRelocation(o, target) {
		m.afterMove(o)
		return
	}
	if m.respawnRelocation(o, false) {
		return
	}
	slog.Debug("object removed, destination grid not loaded", "map", m.ID(), "guid", o.guid, "x", target.X, "y", target.Y)
	m.AddObjectToRemoveList(o.guid)
}

// cellRelocation moves o into the cell of pos, loading the destination grid
// when o keeps grids alive. It reports false when the destination is unloaded.
func (m *Map) cellRelocation(o *Object, pos model.Position) bool {
	oldCell := cell.At(o.Cell())
	newCell := cell.NewCell(pos.X, pos.Y)
	if !newCell.Coord.IsValid() {
		return false
	}

	if !oldCell.DiffGrid(newCell) {
		m.switchCell(o, oldCell.Coord, newCell.Coord, pos)
		return true
	}

	if o.IsActive() || o.IsPlayer() {
		m.EnsureGridLoadedForActiveObject(newCell, o)
		m.switchCell(o, oldCell.Coord, newCell.Coord, pos)
		if p := m.Player(o.guid); p != nil {
			m.updatePersonalPhasesFor(p)
		}
		return true
	}

	if !o.phaseOwner.IsEmpty() && m.Player(o.phaseOwner) != nil {
		m.EnsureGridLoaded(newCell)
	}

	if m.IsGridLoaded(newCell.GridCoord()) {
		m.switchCell(o, oldCell.Coord, newCell.Coord, pos)
		return true
	}
	return false
}

func (m *Map) switchCell(o *Object, from, to cell.CellCoord, pos model.Position) {
	if from != to {
		m.removeFromGrid(o, from)
		m.EnsureGridCreated(to.Grid())
		o.place(pos, to)
		m.addToGrid(o, to)
		return
	}
	o.place(pos, to)
}

// respawnRelocation sends o back to its home position. With diffGridOnly set
// an object whose home lies in its current grid is left alone.
func (m *Map) respawnRelocation(o *Object, diffGridOnly bool) bool {
	if o.IsPlayer() {
		return false
	}
	home := o.HomePosition()
	homeCell := cell.NewCell(home.X, home.Y)
	if diffGridOnly && !cell.At(o.Cell()).DiffGrid(homeCell) {
		return true
	}
	if !m.cellRelocation(o, home) {
		return false
	}
	m.afterMove(o)
	return true
}
