package world

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/instance"
	"github.com/udisondev/worldcore/internal/metrics"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
	"github.com/udisondev/worldcore/internal/terrain"
	"github.com/udisondev/worldcore/internal/tick"
)

const gridCount = cell.MaxGrids * cell.MaxGrids

// minUnloadDelay is the unload timer of a map that should go away on the next pass.
const minUnloadDelay = time.Millisecond

// Params are the collaborators of a map.
type Params struct {
	Entry      *Entry
	InstanceID uint32
	Difficulty uint8
	Config     Config

	Spawns          *spawn.Store
	Pools           *spawn.Pools
	Terrain         *terrain.Registry
	Respawns        RespawnStore
	Visibility      VisibilitySink
	Updates         UpdateSink
	Conditions      ConditionEvaluator
	EntryPoints     EntryPointSender
	TransportEvents TransportEventSink
	Metrics         *metrics.Metrics
	GUIDs           *model.GUIDGenerator

	// Instance maps only.
	Locks   *instance.Manager
	Lock    *instance.Lock
	Scripts ScriptFactory

	Now func() time.Time
}

// Map is one live world: a continent, an instance or a battleground.
type Map struct {
	entry      *Entry
	instanceID uint32
	difficulty uint8
	cfg        Config
	vis        VisibilitySettings

	spawns          *spawn.Store
	pools           *spawn.Pools
	poolState       *spawn.PoolState
	terrainReg      *terrain.Registry
	terrain         *terrain.Map
	respawnDB       RespawnStore
	visibility      VisibilitySink
	updates         UpdateSink
	conditions      ConditionEvaluator
	entryPoints     EntryPointSender
	transportEvents TransportEventSink
	metrics         *metrics.Metrics
	guids           *model.GUIDGenerator
	now             func() time.Time

	grids       [gridCount]atomic.Pointer[Grid]
	gridLocks   [gridCount]sync.Mutex
	loadedGrids atomic.Int32

	objMu   sync.RWMutex
	objects map[model.GUID]*Object
	players map[model.GUID]*Player
	active  map[model.GUID]*Object

	spawnMu sync.RWMutex
	bySpawn map[spawn.Key][]model.GUID

	moveMu   sync.Mutex
	moveList []*Object

	removeMu   sync.Mutex
	removeList map[model.GUID]struct{}

	respawns        respawnSchedule
	respawnTimer    tick.Interval
	persistRespawns bool

	groupMu       sync.RWMutex
	toggledGroups map[uint32]struct{}

	phases  *PhaseTracker
	spatial spatialIndex
	marks   cellMarks

	touchedMu sync.Mutex
	touched   map[model.GUID]struct{}
	dirtyMu   sync.Mutex
	dirty     map[model.GUID]struct{}
	reloc     relocationActor

	transports transportSet
	gameTime   atomic.Int64

	scripts scriptSchedule
	weather weatherTracker

	unloadTimer atomic.Int64

	inst *instanceState
	bg   *battlegroundState
}

// NewMap builds a map. On error nothing is left registered or referenced.
func NewMap(ctx context.Context, p Params) (*Map, error) {
	if p.Entry == nil {
		return nil, fmt.Errorf("create map: nil entry")
	}
	if p.Spawns == nil {
		p.Spawns = spawn.NewStore()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.GUIDs == nil {
		p.GUIDs = model.NewGUIDGenerator()
	}
	if p.Config.Workers <= 0 {
		p.Config.Workers = 1
	}

	de, ok := p.Entry.Difficulty(p.Difficulty)
	if !ok && p.Entry.Kind.IsDungeon() {
		return nil, fmt.Errorf("create map %d difficulty %d: %w", p.Entry.ID, p.Difficulty, ErrUnknownDifficulty)
	}
	if len(p.Entry.Difficulties) == 0 {
		de.ID = p.Difficulty
	}

	m := &Map{
		entry:           p.Entry,
		instanceID:      p.InstanceID,
		difficulty:      de.ID,
		cfg:             p.Config,
		vis:             p.Config.visibility(p.Entry.Kind),
		spawns:          p.Spawns,
		pools:           p.Pools,
		poolState:       p.Pools.NewState(p.Entry.ID),
		terrainReg:      p.Terrain,
		respawnDB:       p.Respawns,
		visibility:      p.Visibility,
		updates:         p.Updates,
		conditions:      p.Conditions,
		entryPoints:     p.EntryPoints,
		transportEvents: p.TransportEvents,
		metrics:         p.Metrics,
		guids:           p.GUIDs,
		now:             p.Now,
		objects:         make(map[model.GUID]*Object, 256),
		players:         make(map[model.GUID]*Player, 16),
		active:          make(map[model.GUID]*Object, 16),
		bySpawn:         make(map[spawn.Key][]model.GUID, 256),
		removeList:      make(map[model.GUID]struct{}),
		respawnTimer:    tick.NewInterval(p.Config.RespawnMinCheckInterval),
		persistRespawns: !p.Entry.Kind.IsBattlegroundOrArena(),
		toggledGroups:   make(map[uint32]struct{}),
		phases:          newPhaseTracker(p.Config.PhaseDeleteDelay),
		touched:         make(map[model.GUID]struct{}),
		dirty:           make(map[model.GUID]struct{}),
	}
	m.respawns.init()
	m.transports.init()
	m.weather.init()
	m.spatial.init()

	if p.Entry.Kind.Instanceable() {
		m.unloadTimer.Store(int64(max(p.Config.InstanceUnloadDelay, minUnloadDelay)))
	}

	if p.Terrain != nil {
		m.terrain = p.Terrain.Load(p.Entry.ID, p.Entry.ParentID)
	}

	if err := m.loadRespawnTimes(ctx); err != nil {
		m.releaseTerrain()
		return nil, fmt.Errorf("create map %d instance %d: %w", p.Entry.ID, p.InstanceID, err)
	}

	switch {
	case p.Entry.Kind.IsDungeon():
		m.inst = newInstanceState(m, p)
		m.CreateInstanceData(p.Scripts)
	case p.Entry.Kind.IsBattlegroundOrArena():
		m.bg = newBattlegroundState()
	}

	m.metrics.MapCreated(p.Entry.Kind.String())
	slog.Info("map created",
		"map", p.Entry.ID,
		"instance", p.InstanceID,
		"kind", p.Entry.Kind,
		"difficulty", m.difficulty)
	return m, nil
}

// Identity of the map: entry, instance and difficulty.
func (m *Map) ID() uint32            { return m.entry.ID }
func (m *Map) InstanceID() uint32    { return m.instanceID }
func (m *Map) Difficulty() uint8     { return m.difficulty }
func (m *Map) Kind() MapKind         { return m.entry.Kind }
func (m *Map) Entry() *Entry         { return m.entry }
func (m *Map) Terrain() *terrain.Map { return m.terrain }

// VisibilityRange is the distance at which objects see each other.
func (m *Map) VisibilityRange() float32 { return m.vis.Distance }

// GameTime is the accumulated tick time of the map.
func (m *Map) GameTime() time.Duration { return time.Duration(m.gameTime.Load()) }

// NextGUID allocates a runtime object id.
func (m *Map) NextGUID(t model.ObjectType) model.GUID { return m.guids.Next(t) }

func (m *Map) releaseTerrain() {
	if m.terrainReg != nil && m.terrain != nil {
		m.terrainReg.Release(m.terrain)
		m.terrain = nil
	}
}

// Grid returns the grid at gc, or nil when it is not created.
func (m *Map) Grid(gc cell.GridCoord) *Grid {
	if !gc.IsValid() {
		return nil
	}
	return m.grids[gc.ID()].Load()
}

// LoadedGridCount returns the number of created grids.
func (m *Map) LoadedGridCount() int { return int(m.loadedGrids.Load()) }

// forEachGrid visits every created grid in id order.
func (m *Map) forEachGrid(fn func(*Grid)) {
	for i := range m.grids {
		if g := m.grids[i].Load(); g != nil {
			fn(g)
		}
	}
}

// EnsureGridCreated creates the grid at gc and references its terrain.
// Different coordinates are created in parallel; the same coordinate serializes.
func (m *Map) EnsureGridCreated(gc cell.GridCoord) *Grid {
	if !gc.IsValid() {
		slog.Warn("grid create: invalid coordinates", "map", m.ID(), "x", gc.X, "y", gc.Y)
		return nil
	}
	idx := gc.ID()
	if g := m.grids[idx].Load(); g != nil {
		return g
	}

	mu := &m.gridLocks[idx]
	mu.Lock()
	defer mu.Unlock()
	if g := m.grids[idx].Load(); g != nil {
		return g
	}

	g := newGrid(gc, m.cfg.GridUnload, m.cfg.GridUnloadDelay)
	g.relocation = tick.NewInterval(m.vis.NotifyPeriod)
	if m.terrain != nil {
		m.terrain.LoadGrid(gc.X, gc.Y)
	}
	m.grids[idx].Store(g)
	m.loadedGrids.Add(1)
	m.metrics.GridLoaded()
	slog.Debug("grid created", "map", m.ID(), "instance", m.instanceID, "x", gc.X, "y", gc.Y)
	return g
}

// EnsureGridLoaded creates the grid of c and loads its spawns once.
func (m *Map) EnsureGridLoaded(c cell.Cell) *Grid {
	g := m.EnsureGridCreated(c.GridCoord())
	if g == nil {
		return nil
	}
	if !g.objectDataLoaded.CompareAndSwap(false, true) {
		return g
	}

	slog.Debug("loading grid objects", "map", m.ID(), "instance", m.instanceID, "x", g.coord.X, "y", g.coord.Y)
	n := m.loadGridObjects(g)
	m.loadPersonalPhasesForGrid(g)
	m.spatial.balance()
	slog.Debug("grid objects loaded", "map", m.ID(), "x", g.coord.X, "y", g.coord.Y, "objects", n)
	return g
}

// EnsureGridLoadedForActiveObject loads the grid of c and keeps it active.
func (m *Map) EnsureGridLoadedForActiveObject(c cell.Cell, obj *Object) *Grid {
	g := m.EnsureGridLoaded(c)
	if g == nil {
		return nil
	}
	g.mu.Lock()
	if g.state != GridActive {
		g.expiry.Reset(m.scaledUnloadDelay(0.1))
		g.state = GridActive
	}
	g.mu.Unlock()
	return g
}

func (m *Map) scaledUnloadDelay(factor float64) time.Duration {
	return time.Duration(float64(m.cfg.GridUnloadDelay) * factor)
}

// ResetGridExpiry restarts the unload countdown of g scaled by factor.
func (m *Map) ResetGridExpiry(g *Grid, factor float64) {
	g.mu.Lock()
	g.expiry.Reset(m.scaledUnloadDelay(factor))
	g.mu.Unlock()
}

// IsGridLoaded reports whether the grid exists and its spawns are loaded.
func (m *Map) IsGridLoaded(gc cell.GridCoord) bool {
	g := m.Grid(gc)
	return g != nil && g.IsObjectDataLoaded()
}

// IsGridLoadedAt reports whether the grid containing (x, y) is loaded.
func (m *Map) IsGridLoadedAt(x, y float32) bool {
	return m.IsGridLoaded(cell.ComputeGridCoord(x, y))
}

// LoadGrid loads the grid containing (x, y).
func (m *Map) LoadGrid(x, y float32) {
	m.EnsureGridLoaded(cell.NewCell(x, y))
}

// Object returns an object attached to the map.
func (m *Map) Object(guid model.GUID) *Object {
	m.objMu.RLock()
	defer m.objMu.RUnlock()
	return m.objects[guid]
}

// Player returns a player on the map.
func (m *Map) Player(guid model.GUID) *Player {
	m.objMu.RLock()
	defer m.objMu.RUnlock()
	return m.players[guid]
}

// Players returns the players ordered by guid.
func (m *Map) Players() []*Player {
	m.objMu.RLock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	m.objMu.RUnlock()
	slices.SortFunc(out, func(a, b *Player) int { return compareGUID(a.guid, b.guid) })
	return out
}

func compareGUID(a, b model.GUID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// PlayerCount returns the number of players on the map.
func (m *Map) PlayerCount() int {
	m.objMu.RLock()
	defer m.objMu.RUnlock()
	return len(m.players)
}

// HavePlayers reports whether any player is on the map.
func (m *Map) HavePlayers() bool { return m.PlayerCount() > 0 }

// PlayerCountExceptGMs counts players that occupy a slot.
func (m *Map) PlayerCountExceptGMs() int {
	m.objMu.RLock()
	defer m.objMu.RUnlock()
	n := 0
	for _, p := range m.players {
		if !p.IsGameMaster() {
			n++
		}
	}
	return n
}

// ObjectCount returns the number of attached objects, players included.
func (m *Map) ObjectCount() int {
	m.objMu.RLock()
	defer m.objMu.RUnlock()
	return len(m.objects)
}

// activeObjects returns permanently active non-player objects ordered by guid.
func (m *Map) activeObjects() []*Object {
	m.objMu.RLock()
	out := make([]*Object, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, o)
	}
	m.objMu.RUnlock()
	slices.SortFunc(out, func(a, b *Object) int { return compareGUID(a.guid, b.guid) })
	return out
}

// ObjectsBySpawnID returns the live objects of a spawn.
func (m *Map) ObjectsBySpawnID(t spawn.Type, spawnID uint64) []*Object {
	m.spawnMu.RLock()
	guids := slices.Clone(m.bySpawn[spawn.Key{Type: t, SpawnID: spawnID}])
	m.spawnMu.RUnlock()

	out := make([]*Object, 0, len(guids))
	for _, g := range guids {
		if o := m.Object(g); o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m *Map) indexSpawn(o *Object) {
	if !o.isSpawned() {
		return
	}
	m.spawnMu.Lock()
	k := o.spawnKey()
	m.bySpawn[k] = append(m.bySpawn[k], o.guid)
	m.spawnMu.Unlock()
}

func (m *Map) unindexSpawn(o *Object) {
	if !o.isSpawned() {
		return
	}
	m.spawnMu.Lock()
	defer m.spawnMu.Unlock()
	k := o.spawnKey()
	list := m.bySpawn[k]
	if i := slices.Index(list, o.guid); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	if len(list) == 0 {
		delete(m.bySpawn, k)
		return
	}
	m.bySpawn[k] = list
}

func (m *Map) addToGrid(o *Object, c cell.CellCoord) bool {
	g := m.Grid(c.Grid())
	if g == nil {
		return false
	}
	g.cellAt(c).set(o.worldContainer).add(o.guid)
	return true
}

func (m *Map) removeFromGrid(o *Object, c cell.CellCoord) {
	if g := m.Grid(c.Grid()); g != nil {
		g.cellAt(c).set(o.worldContainer).remove(o.guid)
	}
}

// AddToMap attaches a non-player object at its current position.
func (m *Map) AddToMap(o *Object) error {
	if o.IsPlayer() {
		return fmt.Errorf("add %s: use AddPlayerToMap", o.guid)
	}
	pos := o.Position()
	cc := cell.ComputeCellCoord(pos.X, pos.Y)
	if !cc.IsValid() {
		slog.Error("map add: invalid coordinates", "map", m.ID(), "guid", o.guid, "x", pos.X, "y", pos.Y)
		return fmt.Errorf("add %s: %w", o.guid, ErrInvalidPosition)
	}

	c := cell.At(cc)
	if o.IsActive() {
		m.EnsureGridLoadedForActiveObject(c, o)
	} else {
		m.EnsureGridCreated(c.GridCoord())
	}
	if err := m.attach(o, pos, cc); err != nil {
		return err
	}
	if o.IsActive() {
		m.addToActive(o)
	}
	m.spatial.insert(o)
	return nil
}

// attach registers o in the object table and its cell.
func (m *Map) attach(o *Object, pos model.Position, cc cell.CellCoord) error {
	m.objMu.Lock()
	if _, dup := m.objects[o.guid]; dup {
		m.objMu.Unlock()
		return fmt.Errorf("add %s: %w", o.guid, ErrDuplicateObject)
	}
	m.objects[o.guid] = o
	m.objMu.Unlock()

	o.place(pos, cc)
	m.addToGrid(o, cc)
	o.setInWorld(true)
	m.indexSpawn(o)
	o.setNotify()
	m.markChanged(o.guid)
	return nil
}

// AddPlayerToMap attaches a player after the entry gate accepted it.
func (m *Map) AddPlayerToMap(p *Player) error {
	if st := m.CannotEnter(p); st != EnterOK {
		slog.Debug("map entry refused", "map", m.ID(), "instance", m.instanceID, "player", p.guid, "reason", st)
		return fmt.Errorf("enter map %d: %w", m.ID(), st.Err())
	}

	pos := p.Position()
	cc := cell.ComputeCellCoord(pos.X, pos.Y)
	if !cc.IsValid() {
		slog.Error("player add: invalid coordinates", "map", m.ID(), "player", p.guid, "x", pos.X, "y", pos.Y)
		return fmt.Errorf("enter map %d: %w", m.ID(), ErrInvalidPosition)
	}

	if m.inst != nil {
		m.inst.beforePlayerEnter(p)
	}

	m.EnsureGridLoadedForActiveObject(cell.At(cc), &p.Object)
	if err := m.attach(&p.Object, pos, cc); err != nil {
		return err
	}
	m.objMu.Lock()
	m.players[p.guid] = p
	m.objMu.Unlock()
	m.unloadTimer.Store(0)
	if m.bg != nil {
		m.bg.joined(p)
	}

	m.metrics.PlayersChanged(1)
	m.updatePersonalPhasesFor(p)
	m.updateVisibilityOf(p)

	if m.inst != nil {
		m.inst.afterPlayerEnter(p)
	}
	slog.Info("player entered map", "map", m.ID(), "instance", m.instanceID, "player", p.guid)
	return nil
}

// RemovePlayerFromMap detaches a player.
func (m *Map) RemovePlayerFromMap(p *Player) {
	m.objMu.Lock()
	_, ok := m.players[p.guid]
	if ok {
		delete(m.players, p.guid)
	}
	last := ok && len(m.players) == 0
	m.objMu.Unlock()
	if !ok {
		return
	}

	if last && m.entry.Kind.Instanceable() && m.unloadTimer.Load() == 0 {
		delay := max(m.cfg.InstanceUnloadDelay, minUnloadDelay)
		if m.inst != nil && m.inst.unloadWhenEmpty() {
			delay = minUnloadDelay
		}
		m.unloadTimer.Store(int64(delay))
	}

	if m.bg != nil {
		m.bg.left(p)
	}
	m.detach(&p.Object)
	m.phases.markOwnerForDeletion(p.guid)
	p.updateVisible(map[model.GUID]struct{}{})
	m.metrics.PlayersChanged(-1)
	slog.Info("player left map", "map", m.ID(), "instance", m.instanceID, "player", p.guid)
}

// RemoveFromMap detaches a non-player object immediately.
func (m *Map) RemoveFromMap(o *Object) {
	if o.IsPlayer() {
		if p := m.Player(o.guid); p != nil {
			m.RemovePlayerFromMap(p)
		}
		return
	}
	if o.IsActive() {
		m.removeFromActive(o)
	}
	m.phases.untrack(o)
	m.spatial.remove(o.guid)
	m.detach(o)
}

func (m *Map) detach(o *Object) {
	m.objMu.Lock()
	if m.objects[o.guid] != o {
		m.objMu.Unlock()
		return
	}
	delete(m.objects, o.guid)
	m.objMu.Unlock()

	m.removeFromGrid(o, o.Cell())
	o.setInWorld(false)
	m.unindexSpawn(o)
	m.forgetForViewers(o.guid)
}

// AddObjectToRemoveList schedules o for removal at the next DelayedUpdate.
func (m *Map) AddObjectToRemoveList(guid model.GUID) {
	m.removeMu.Lock()
	m.removeList[guid] = struct{}{}
	m.removeMu.Unlock()
}

// RemoveAllObjectsInRemoveList removes every scheduled object.
func (m *Map) RemoveAllObjectsInRemoveList() int {
	m.removeMu.Lock()
	list := make([]model.GUID, 0, len(m.removeList))
	for g := range m.removeList {
		list = append(list, g)
	}
	clear(m.removeList)
	m.removeMu.Unlock()

	slices.Sort(list)
	removed := 0
	for _, g := range list {
		o := m.Object(g)
		if o == nil {
			continue
		}
		m.RemoveFromMap(o)
		removed++
	}
	return removed
}

// AddToActive makes o permanently active. A spawned object also pins its home grid.
func (m *Map) AddToActive(o *Object) {
	if o.active.Swap(true) {
		return
	}
	if o.IsInWorld() {
		m.addToActive(o)
	}
}

// RemoveFromActive clears the active flag of o.
func (m *Map) RemoveFromActive(o *Object) {
	if !o.active.Swap(false) {
		return
	}
	m.removeFromActive(o)
}

func (m *Map) addToActive(o *Object) {
	if o.IsPlayer() {
		return
	}
	m.objMu.Lock()
	m.active[o.guid] = o
	m.objMu.Unlock()

	if !o.isSpawned() {
		return
	}
	home := o.HomePosition()
	gc := cell.ComputeGridCoord(home.X, home.Y)
	g := m.Grid(gc)
	if g == nil {
		pos := o.Position()
		cur := cell.ComputeGridCoord(pos.X, pos.Y)
		slog.Error("active object added but its spawn grid is not loaded",
			"map", m.ID(),
			"guid", o.guid,
			"gridX", cur.X,
			"gridY", cur.Y,
			"spawnGridX", gc.X,
			"spawnGridY", gc.Y)
		return
	}
	if o.homeLock.CompareAndSwap(-1, int32(g.ID())) {
		g.incUnloadActiveLock()
	}
}

func (m *Map) removeFromActive(o *Object) {
	m.objMu.Lock()
	delete(m.active, o.guid)
	m.objMu.Unlock()

	id := o.homeLock.Swap(-1)
	if id < 0 {
		return
	}
	if g := m.grids[id].Load(); g != nil {
		g.decUnloadActiveLock()
		return
	}
	slog.Error("active object removed but its spawn grid is not loaded", "map", m.ID(), "guid", o.guid, "grid", id)
}

// VisitCell calls fn for every object in c. A NoCreate cell is skipped
// unless its grid is loaded; otherwise the grid is loaded first.
func (m *Map) VisitCell(c cell.Cell, fn func(*Object)) {
	if !c.Coord.IsValid() {
		slog.Debug("visit: invalid cell", "map", m.ID(), "x", c.Coord.X, "y", c.Coord.Y)
		return
	}
	gc := c.GridCoord()
	if c.NoCreate && !m.IsGridLoaded(gc) {
		return
	}
	g := m.EnsureGridLoaded(c)
	if g == nil {
		return
	}
	gcell := g.cellAt(c.Coord)
	for _, world := range []bool{false, true} {
		for _, guid := range gcell.set(world).guids() {
			if o := m.Object(guid); o != nil {
				fn(o)
			}
		}
	}
}

// VisitRadius visits every object in the cells a circle around (x, y) touches.
func (m *Map) VisitRadius(x, y, radius float32, noCreate bool, fn func(*Object)) {
	standing := cell.NewCell(x, y)
	standing.NoCreate = noCreate
	cell.Visit(standing, x, y, radius, func(c cell.Cell) {
		m.VisitCell(c, fn)
	})
}

// ObjectsInRange returns objects within radius of pos in loaded grids.
func (m *Map) ObjectsInRange(pos model.Position, radius float32) []*Object {
	var out []*Object
	r2 := float64(radius) * float64(radius)
	m.VisitRadius(pos.X, pos.Y, radius, true, func(o *Object) {
		if o.Position().Distance2DSquared(pos) <= r2 {
			out = append(out, o)
		}
	})
	return out
}

// UnloadTimer returns the remaining time before an empty map may be destroyed; zero means never.
func (m *Map) UnloadTimer() time.Duration { return time.Duration(m.unloadTimer.Load()) }

// CanUnload advances the unload timer and reports whether the map may be destroyed.
func (m *Map) CanUnload(diff time.Duration) bool {
	t := time.Duration(m.unloadTimer.Load())
	if t == 0 {
		return false
	}
	if t <= diff {
		return true
	}
	m.unloadTimer.Store(int64(t - diff))
	return false
}

// SetUnload makes the map go away on the next manager pass.
func (m *Map) SetUnload() { m.unloadTimer.Store(int64(minUnloadDelay)) }

// RemoveAllPlayers sends every player to its entry point.
func (m *Map) RemoveAllPlayers() {
	players := m.Players()
	if len(players) == 0 {
		return
	}
	if m.bg == nil {
		slog.Warn("map destroyed with players inside", "map", m.ID(), "instance", m.instanceID, "players", len(players))
	}
	for _, p := range players {
		if m.entryPoints != nil {
			m.entryPoints.SendToEntryPoint(p, m.ID())
		} else {
			m.RemovePlayerFromMap(p)
		}
	}
}

// UnloadAll force-unloads every grid and drops transports and instance state.
func (m *Map) UnloadAll() {
	m.reloc.wait()
	m.MoveAllInMoveList()
	m.RemoveAllObjectsInRemoveList()

	for _, t := range m.transports.list() {
		m.removeTransport(t)
	}
	m.forEachGrid(func(g *Grid) {
		m.UnloadGrid(g, true)
	})
	if m.inst != nil {
		m.inst.close()
	}
	m.releaseTerrain()
	m.metrics.MapDestroyed(m.entry.Kind.String())
	m.metrics.RespawnsPending(-m.respawns.len())
	slog.Info("map unloaded", "map", m.ID(), "instance", m.instanceID)
}
