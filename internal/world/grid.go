package world

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/tick"
)

// GridState is the lifecycle state of a loaded grid.
type GridState uint8

const (
	GridInvalid GridState = iota
	GridActive
	GridIdle
	GridRemoval
)

func (s GridState) String() string {
	switch s {
	case GridActive:
		return "active"
	case GridIdle:
		return "idle"
	case GridRemoval:
		return "removal"
	default:
		return "invalid"
	}
}

// objectSet is a concurrent GUID set with a lazily rebuilt snapshot.
type objectSet struct {
	objects sync.Map // model.GUID -> struct{}
	count   atomic.Int32
	version atomic.Uint64

	snapshot atomic.Pointer[setSnapshot]
}

// setSnapshot is immutable once stored.
type setSnapshot struct {
	version uint64
	guids   []model.GUID
}

func (s *objectSet) add(guid model.GUID) {
	if _, loaded := s.objects.LoadOrStore(guid, struct{}{}); loaded {
		return
	}
	s.count.Add(1)
	s.version.Add(1)
}

func (s *objectSet) remove(guid model.GUID) {
	if _, loaded := s.objects.LoadAndDelete(guid); !loaded {
		return
	}
	s.count.Add(-1)
	s.version.Add(1)
}

func (s *objectSet) contains(guid model.GUID) bool {
	_, ok := s.objects.Load(guid)
	return ok
}

func (s *objectSet) len() int { return int(s.count.Load()) }

// guids returns the current members. The slice must not be modified.
func (s *objectSet) guids() []model.GUID {
	v := s.version.Load()
	if cached := s.snapshot.Load(); cached != nil && cached.version == v {
		return cached.guids
	}
	out := make([]model.GUID, 0, s.len())
	s.objects.Range(func(key, _ any) bool {
		out = append(out, key.(model.GUID))
		return true
	})
	s.snapshot.Store(&setSnapshot{version: v, guids: out})
	return out
}

func (s *objectSet) clear() {
	s.objects.Range(func(key, _ any) bool {
		s.objects.Delete(key)
		return true
	})
	s.count.Store(0)
	s.version.Add(1)
}

// GridCell holds weak references to the objects standing in one cell.
// Players and transports live in the world set, everything else in the grid set.
type GridCell struct {
	gridObjects  objectSet
	worldObjects objectSet
}

func (c *GridCell) set(world bool) *objectSet {
	if world {
		return &c.worldObjects
	}
	return &c.gridObjects
}

// Version changes whenever the cell's membership does.
func (c *GridCell) Version() uint64 {
	return c.gridObjects.version.Load() + c.worldObjects.version.Load()
}

// Count returns the number of objects in the cell.
func (c *GridCell) Count() int {
	return c.gridObjects.len() + c.worldObjects.len()
}

// Grid is a MaxCells×MaxCells block of cells, the unit of loading.
type Grid struct {
	coord cell.GridCoord
	cells [cell.MaxCells][cell.MaxCells]GridCell

	// objectDataLoaded guards the one-time spawn load.
	objectDataLoaded atomic.Bool

	mu             sync.Mutex
	state          GridState
	expiry         tick.Countdown
	relocation     tick.Interval
	unloadExplicit bool
	unloadActive   int
}

func newGrid(c cell.GridCoord, unload bool, expiry time.Duration) *Grid {
	g := &Grid{
		coord:          c,
		state:          GridIdle,
		expiry:         tick.NewCountdown(expiry),
		unloadExplicit: !unload,
	}
	return g
}

// Coord returns the grid position in the lattice.
func (g *Grid) Coord() cell.GridCoord { return g.coord }

// ID returns the packed grid id.
func (g *Grid) ID() uint32 { return g.coord.ID() }

// State returns the current lifecycle state.
func (g *Grid) State() GridState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Grid) setState(s GridState) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Cell returns the cell at local coordinates.
func (g *Grid) Cell(x, y int) *GridCell {
	return &g.cells[x][y]
}

func (g *Grid) cellAt(c cell.CellCoord) *GridCell {
	return &g.cells[c.X%cell.MaxCells][c.Y%cell.MaxCells]
}

// IsObjectDataLoaded reports whether spawns were loaded into the grid.
func (g *Grid) IsObjectDataLoaded() bool { return g.objectDataLoaded.Load() }

// HasUnloadLock reports whether something prevents the grid from unloading.
func (g *Grid) HasUnloadLock() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unloadExplicit || g.unloadActive > 0
}

func (g *Grid) incUnloadActiveLock() {
	g.mu.Lock()
	g.unloadActive++
	g.mu.Unlock()
}

func (g *Grid) decUnloadActiveLock() {
	g.mu.Lock()
	if g.unloadActive > 0 {
		g.unloadActive--
	}
	g.mu.Unlock()
}

// SetUnloadExplicitLock pins the grid in memory.
func (g *Grid) SetUnloadExplicitLock(on bool) {
	g.mu.Lock()
	g.unloadExplicit = on
	g.mu.Unlock()
}

// forEachObject visits every object guid of the grid; world selects the container kind.
func (g *Grid) forEachObject(world bool, fn func(model.GUID)) {
	for x := range cell.MaxCells {
		for y := range cell.MaxCells {
			for _, guid := range g.cells[x][y].set(world).guids() {
				fn(guid)
			}
		}
	}
}

// objectGUIDs collects every guid in the grid.
func (g *Grid) objectGUIDs() []model.GUID {
	var out []model.GUID
	g.forEachObject(false, func(guid model.GUID) { out = append(out, guid) })
	g.forEachObject(true, func(guid model.GUID) { out = append(out, guid) })
	return out
}

// WorldObjectCount counts world-container objects (players, transports).
func (g *Grid) WorldObjectCount() int {
	n := 0
	for x := range cell.MaxCells {
		for y := range cell.MaxCells {
			n += g.cells[x][y].worldObjects.len()
		}
	}
	return n
}

// ObjectCount counts every object in the grid.
func (g *Grid) ObjectCount() int {
	n := 0
	for x := range cell.MaxCells {
		for y := range cell.MaxCells {
			n += g.cells[x][y].Count()
		}
	}
	return n
}

func (g *Grid) clear() {
	for x := range cell.MaxCells {
		for y := range cell.MaxCells {
			g.cells[x][y].gridObjects.clear()
			g.cells[x][y].worldObjects.clear()
		}
	}
}
