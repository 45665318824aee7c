package world

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

type stopRecorder struct {
	mu      sync.Mutex
	stopped []model.GUID
}

func (r *stopRecorder) Update(*Object, time.Duration) {}

func (r *stopRecorder) Stop(o *Object) {
	r.mu.Lock()
	r.stopped = append(r.stopped, o.GUID())
	r.mu.Unlock()
}

func (r *stopRecorder) Stopped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stopped)
}

func TestEnsureGridLoaded_SpawnsOnce(t *testing.T) {
	heroicOnly := creatureSpawn(3, 40, 40)
	heroicOnly.Difficulties = []uint8{2}
	personal := creatureSpawn(4, 50, 50)
	personal.PersonalPhase = 7
	object := spawn.Data{
		Metadata: spawn.Metadata{Type: spawn.TypeGameObject, SpawnID: 1},
		Entry:    9,
		Position: model.Position{X: 60, Y: 10},
	}
	store := newSpawnStore(t, creatureSpawn(1, 20, 20), creatureSpawn(2, 30, 30), heroicOnly, personal, object)
	m := newTestMap(t, Params{Spawns: store})

	g := m.EnsureGridLoaded(cell.NewCell(10, 10))
	require.NotNil(t, g)
	assert.Same(t, g, m.EnsureGridLoaded(cell.NewCell(100, 100)))

	if m.ObjectCount() != 3 {
		t.Errorf("ObjectCount() = %d, want 3", m.ObjectCount())
	}
	assert.Empty(t, m.ObjectsBySpawnID(spawn.TypeCreature, 3))
	assert.Empty(t, m.ObjectsBySpawnID(spawn.TypeCreature, 4))
	assert.Len(t, m.GameObjectsInRange(model.Position{X: 60, Y: 10}, 5), 1)
}

func TestEnsureGridLoaded_SkipsPendingRespawnAndInactiveGroup(t *testing.T) {
	store := spawn.NewStore()
	store.AddGroup(spawn.Group{ID: 5, Name: "event", MapID: 0, Flags: spawn.GroupFlagManualSpawn})
	grouped := creatureSpawn(2, 30, 30)
	grouped.GroupID = 5
	require.NoError(t, store.AddSpawn(creatureSpawn(1, 20, 20)))
	require.NoError(t, store.AddSpawn(grouped))

	clock := newTestClock()
	m := newTestMap(t, Params{Spawns: store, Now: clock.Now})
	require.True(t, m.SaveRespawnTime(spawn.TypeCreature, 1, 1001, clock.Now().Add(time.Hour), 0, false))

	m.LoadGrid(10, 10)
	assert.Equal(t, 0, m.ObjectCount())
}

func TestUnloadGrid_RefusesWithActiveObject(t *testing.T) {
	m := newTestMap(t, Params{})
	m.LoadGrid(10, 10)
	g := m.Grid(cell.ComputeGridCoord(10, 10))

	o := NewObject(model.MakeGUID(model.TypeCreature, 1), 1, model.Position{X: 10, Y: 10})
	m.AddToActive(o)
	require.NoError(t, m.AddToMap(o))

	assert.False(t, m.UnloadGrid(g, false))
	assert.Same(t, g, m.Grid(g.Coord()))

	m.RemoveFromActive(o)
	assert.True(t, m.UnloadGrid(g, false))
	assert.Nil(t, m.Grid(g.Coord()))
	assert.False(t, o.IsInWorld())
}

func TestUnloadGrid_RefusesWithPlayerNearby(t *testing.T) {
	m := newTestMap(t, Params{})
	m.LoadGrid(10, 10)
	g := m.Grid(cell.ComputeGridCoord(10, 10))

	p, _ := addPlayer(t, m, 1, -50, 10)
	require.NotEqual(t, g.Coord(), p.Cell().Grid())

	assert.True(t, m.ActiveObjectsNearGrid(g))
	assert.False(t, m.UnloadGrid(g, false))

	m.RemovePlayerFromMap(p)
	assert.False(t, m.ActiveObjectsNearGrid(g))
	assert.True(t, m.UnloadGrid(g, false))
}

func TestUnloadGrid_ForceUnloadsObjects(t *testing.T) {
	m := newTestMap(t, Params{Spawns: newSpawnStore(t, creatureSpawn(1, 2000, 2000))})
	m.LoadGrid(2000, 2000)
	g := m.Grid(cell.ComputeGridCoord(2000, 2000))
	require.Equal(t, 1, m.ObjectCount())

	o := NewObject(model.MakeGUID(model.TypeCreature, 50), 1, model.Position{X: 2000, Y: 2000})
	m.AddToActive(o)
	require.NoError(t, m.AddToMap(o))

	assert.True(t, m.UnloadGrid(g, true))
	assert.Equal(t, 0, m.ObjectCount())
	assert.Equal(t, 0, m.LoadedGridCount())
	assert.Equal(t, 0, g.ObjectCount())

	m.LoadGrid(2000, 2000)
	assert.Len(t, m.ObjectsBySpawnID(spawn.TypeCreature, 1), 1, "reloading the grid spawns again")
}

func TestUnloadGrid_EvacuatesStrayObjects(t *testing.T) {
	m := newTestMap(t, Params{})
	m.LoadGrid(10, 10)
	m.LoadGrid(2000, 2000)

	o := NewObject(model.MakeGUID(model.TypeCreature, 1), 1, model.Position{X: 10, Y: 10})
	require.NoError(t, m.AddToMap(o))
	require.NoError(t, m.Relocate(o.GUID(), model.Position{X: 2000, Y: 2000}))
	m.MoveAllInMoveList()
	require.Equal(t, cell.ComputeCellCoord(2000, 2000), o.Cell())

	require.True(t, m.UnloadGrid(m.Grid(cell.ComputeGridCoord(2000, 2000)), false))
	assert.True(t, o.IsInWorld(), "object went back to its home grid")
	assert.Equal(t, cell.ComputeCellCoord(10, 10), o.Cell())
}

func TestGridLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GridUnloadDelay = 10 * time.Second
	m := newTestMap(t, Params{Config: cfg})

	m.LoadGrid(2000, 2000)
	gc := cell.ComputeGridCoord(2000, 2000)
	g := m.Grid(gc)
	require.Equal(t, GridIdle, g.State())

	m.DelayedUpdate(time.Second)
	assert.Equal(t, GridRemoval, g.State())

	m.DelayedUpdate(5 * time.Second)
	assert.Same(t, g, m.Grid(gc))

	m.DelayedUpdate(5 * time.Second)
	assert.Nil(t, m.Grid(gc))
}

func TestGridLifecycle_ActiveGridGoesIdle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GridUnloadDelay = 10 * time.Second
	m := newTestMap(t, Params{Config: cfg, Spawns: newSpawnStore(t, creatureSpawn(1, 20, 20))})

	p, _ := addPlayer(t, m, 1, 10, 10)
	g := m.Grid(cell.ComputeGridCoord(10, 10))
	stopper := &stopRecorder{}
	objs := m.ObjectsBySpawnID(spawn.TypeCreature, 1)
	require.Len(t, objs, 1)
	objs[0].SetBehavior(stopper)

	m.DelayedUpdate(time.Second)
	assert.Equal(t, GridActive, g.State(), "occupied grid stays active")

	m.RemovePlayerFromMap(p)
	m.DelayedUpdate(time.Second)
	assert.Equal(t, GridIdle, g.State())
	assert.Equal(t, 1, stopper.Stopped())
}

func TestGridLifecycle_UnloadLockHoldsRemoval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GridUnloadDelay = time.Second
	m := newTestMap(t, Params{Config: cfg})
	m.LoadGrid(2000, 2000)
	g := m.Grid(cell.ComputeGridCoord(2000, 2000))
	g.SetUnloadExplicitLock(true)

	for range 5 {
		m.DelayedUpdate(time.Minute)
	}
	assert.Same(t, g, m.Grid(g.Coord()))
	assert.Equal(t, GridRemoval, g.State())
}
