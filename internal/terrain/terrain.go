package terrain

import (
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/tick"
)

const gridCount = cell.MaxGrids * cell.MaxGrids

// LiquidStatus describes the liquid surface above a point.
type LiquidStatus struct {
	Level      float32
	Underwater bool
}

// Map is the terrain of one map id, shared by every live instance of it.
// Grids are reference counted; a grid is loaded by the first reference and
// freed by the periodic sweep once nothing references it.
type Map struct {
	mapID uint32
	dir   string
	mmaps bool

	parent   *Map
	children []*Map // guarded by loadMu

	refs  [gridCount]atomic.Int32
	grids [gridCount]atomic.Pointer[GridMap]
	tiles [gridCount]atomic.Pointer[Tile]

	loadMu  sync.Mutex
	loaded  [gridCount]bool
	cleanup tick.Interval
}

func newMap(mapID uint32, dir string, mmaps bool, cleanupInterval time.Duration) *Map {
	return &Map{
		mapID:   mapID,
		dir:     dir,
		mmaps:   mmaps,
		cleanup: tick.NewInterval(cleanupInterval),
	}
}

// MapID returns the map the terrain belongs to.
func (m *Map) MapID() uint32 { return m.mapID }

// Parent returns the parent terrain, or nil.
func (m *Map) Parent() *Map { return m.parent }

func gridIndex(gx, gy int) int { return gx*cell.MaxGrids + gy }

func validGrid(gx, gy int) bool {
	return cell.GridCoord{X: gx, Y: gy}.IsValid()
}

// LoadGrid takes a reference on grid (gx, gy). The first reference loads its data.
func (m *Map) LoadGrid(gx, gy int) {
	if !validGrid(gx, gy) {
		slog.Warn("terrain load: invalid grid", "map", m.mapID, "x", gx, "y", gy)
		return
	}
	if m.refs[gridIndex(gx, gy)].Add(1) != 1 {
		return
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.loadLocked(gx, gy)
}

func (m *Map) loadLocked(gx, gy int) {
	idx := gridIndex(gx, gy)
	if m.loaded[idx] {
		return
	}

	gm, err := LoadGridMap(GridMapPath(m.dir, m.mapID, gx, gy))
	switch {
	case err == nil:
		m.grids[idx].Store(gm)
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("no terrain data", "map", m.mapID, "x", gx, "y", gy)
	default:
		slog.Warn("terrain grid unreadable", "map", m.mapID, "x", gx, "y", gy, "error", err)
	}

	if m.mmaps {
		tile, err := LoadTile(TilePath(m.dir, m.mapID, gx, gy))
		switch {
		case err == nil:
			m.tiles[idx].Store(tile)
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("no navigation tile", "map", m.mapID, "x", gx, "y", gy)
		default:
			slog.Warn("navigation tile rejected", "map", m.mapID, "x", gx, "y", gy, "error", err)
		}
	}

	for _, child := range m.children {
		child.loadMu.Lock()
		child.loadLocked(gx, gy)
		child.loadMu.Unlock()
	}
	m.loaded[idx] = true
}

// UnloadGrid drops a reference. Data is freed later by CleanUpGrids.
func (m *Map) UnloadGrid(gx, gy int) {
	if !validGrid(gx, gy) {
		return
	}
	ref := &m.refs[gridIndex(gx, gy)]
	if ref.Add(-1) < 0 {
		ref.Store(0)
		slog.Warn("terrain unload without reference", "map", m.mapID, "x", gx, "y", gy)
	}
}

// CleanUpGrids frees every loaded grid nobody references once the cleanup interval passes.
func (m *Map) CleanUpGrids(diff time.Duration) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.cleanup.Update(diff)
	if !m.cleanup.Passed() {
		return
	}
	for idx := range gridCount {
		if m.loaded[idx] && m.refs[idx].Load() == 0 {
			m.unloadLocked(idx)
		}
	}
	m.cleanup.Reset()
}

func (m *Map) unloadLocked(idx int) {
	m.grids[idx].Store(nil)
	m.tiles[idx].Store(nil)
	m.loaded[idx] = false
	for _, child := range m.children {
		child.loadMu.Lock()
		if child.loaded[idx] && child.refs[idx].Load() == 0 {
			child.unloadLocked(idx)
		}
		child.loadMu.Unlock()
	}
}

// unloadAll frees every grid regardless of references.
func (m *Map) unloadAll() {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	for idx := range gridCount {
		if m.loaded[idx] {
			m.grids[idx].Store(nil)
			m.tiles[idx].Store(nil)
			m.loaded[idx] = false
		}
	}
}

// IsGridLoaded reports whether grid data has been loaded (it may still be empty).
func (m *Map) IsGridLoaded(gx, gy int) bool {
	if !validGrid(gx, gy) {
		return false
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	return m.loaded[gridIndex(gx, gy)]
}

// References returns the current reference count of a grid.
func (m *Map) References(gx, gy int) int32 {
	if !validGrid(gx, gy) {
		return 0
	}
	return m.refs[gridIndex(gx, gy)].Load()
}

// Tile returns the navigation tile of a grid, if loaded.
func (m *Map) Tile(gx, gy int) (*Tile, bool) {
	if !validGrid(gx, gy) {
		return nil, false
	}
	t := m.tiles[gridIndex(gx, gy)].Load()
	return t, t != nil
}

// locate returns the heightmap under (x, y) and the local height cell.
func (m *Map) locate(x, y float32) (*GridMap, int, int, bool) {
	gc := cell.ComputeGridCoord(x, y)
	if !gc.IsValid() {
		return nil, 0, 0, false
	}
	gm := m.grids[gridIndex(gc.X, gc.Y)].Load()
	if gm == nil {
		return nil, 0, 0, false
	}
	lx := localCell(x, gc.X)
	ly := localCell(y, gc.Y)
	return gm, lx, ly, true
}

func localCell(v float32, g int) int {
	origin := float64(g-cell.CenterGridID) * cell.GridSize
	c := int((float64(v) - origin) / HeightCellSize)
	switch {
	case c < 0:
		return 0
	case c >= GridCellsX:
		return GridCellsX - 1
	}
	return c
}

// Height returns the ground height nearest to z at (x, y).
func (m *Map) Height(x, y, z float32) (float32, bool) {
	gm, lx, ly, ok := m.locate(x, y)
	if !ok {
		return InvalidHeight, false
	}
	return gm.Height(lx, ly, z), true
}

// MoveMask returns the movement mask at (x, y, z). Without data every direction is open.
func (m *Map) MoveMask(x, y, z float32) byte {
	gm, lx, ly, ok := m.locate(x, y)
	if !ok {
		return MoveAll
	}
	return gm.MoveMask(lx, ly, z)
}

// Liquid returns the liquid status at (x, y, z).
func (m *Map) Liquid(x, y, z float32) (LiquidStatus, bool) {
	gm, _, _, ok := m.locate(x, y)
	if !ok {
		return LiquidStatus{}, false
	}
	level, has := gm.LiquidLevel()
	if !has {
		return LiquidStatus{}, false
	}
	return LiquidStatus{Level: level, Underwater: z < level}, true
}

// Area returns the area id at (x, y).
func (m *Map) Area(x, y float32) (uint16, bool) {
	gm, _, _, ok := m.locate(x, y)
	if !ok {
		return 0, false
	}
	return gm.Area(), true
}
