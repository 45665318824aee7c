package world

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

func TestNewMap(t *testing.T) {
	m := newTestMap(t, Params{})

	if m.LoadedGridCount() != 0 {
		t.Errorf("LoadedGridCount() = %d, want 0", m.LoadedGridCount())
	}
	if m.UnloadTimer() != 0 {
		t.Errorf("UnloadTimer() = %v, want 0 for a continent", m.UnloadTimer())
	}
	if m.VisibilityRange() != 100 {
		t.Errorf("VisibilityRange() = %v, want 100", m.VisibilityRange())
	}
	assert.Nil(t, m.InstanceScript())
	assert.False(t, m.IsBattlegroundOrArena())
}

func TestNewMap_Errors(t *testing.T) {
	_, err := NewMap(context.Background(), Params{})
	assert.Error(t, err)

	_, err = NewMap(context.Background(), Params{Entry: raidEntry(), Difficulty: 9, Config: DefaultConfig()})
	assert.ErrorIs(t, err, ErrUnknownDifficulty)

	store := newMemRespawns()
	store.loadErr = errors.New("db down")
	_, err = NewMap(context.Background(), Params{Entry: continentEntry(), Config: DefaultConfig(), Respawns: store})
	assert.Error(t, err)
}

func TestNewMap_InstanceUnloadTimer(t *testing.T) {
	m := newTestMap(t, Params{Entry: raidEntry(), InstanceID: 3, Difficulty: 3})

	assert.Equal(t, 30*time.Minute, m.UnloadTimer())
	assert.Equal(t, 10, m.MaxPlayers())
	assert.Equal(t, uint8(3), m.Difficulty())
}

func TestAddToMap(t *testing.T) {
	m := newTestMap(t, Params{})
	o := NewObject(model.MakeGUID(model.TypeCreature, 1), 42, model.Position{X: 10, Y: 10})

	require.NoError(t, m.AddToMap(o))
	assert.True(t, o.IsInWorld())
	assert.Equal(t, 1, m.ObjectCount())
	assert.Equal(t, cell.ComputeCellCoord(10, 10), o.Cell())
	require.NotNil(t, m.Grid(cell.ComputeGridCoord(10, 10)))
	assert.False(t, m.IsGridLoadedAt(10, 10), "AddToMap creates the grid without loading spawns")

	assert.ErrorIs(t, m.AddToMap(o), ErrDuplicateObject)

	far := NewObject(model.MakeGUID(model.TypeCreature, 2), 42, model.Position{X: 1e7, Y: 0})
	assert.ErrorIs(t, m.AddToMap(far), ErrInvalidPosition)

	m.RemoveFromMap(o)
	assert.False(t, o.IsInWorld())
	assert.Equal(t, 0, m.ObjectCount())
	assert.Equal(t, 0, m.Grid(cell.ComputeGridCoord(10, 10)).ObjectCount())
}

func TestAddPlayerToMap(t *testing.T) {
	store := newSpawnStore(t, creatureSpawn(1, 20, 20), creatureSpawn(2, 2000, 2000))
	vis := &recordingVisibility{}
	m := newTestMap(t, Params{Spawns: store, Visibility: vis})

	p, _ := addPlayer(t, m, 1, 10, 10)

	assert.True(t, m.IsGridLoadedAt(10, 10))
	assert.False(t, m.IsGridLoadedAt(2000, 2000))
	assert.Equal(t, GridActive, m.Grid(cell.ComputeGridCoord(10, 10)).State())

	near := m.ObjectsBySpawnID(spawn.TypeCreature, 1)
	require.Len(t, near, 1)
	assert.Empty(t, m.ObjectsBySpawnID(spawn.TypeCreature, 2))
	assert.True(t, p.CanSee(near[0].GUID()))
	assert.Contains(t, vis.Events(), visibilityEvent{viewer: p.GUID(), obj: near[0].GUID(), appeared: true})

	assert.Equal(t, 1, m.PlayerCount())
	assert.True(t, m.HavePlayers())
	assert.ErrorIs(t, m.AddPlayerToMap(p), ErrAlreadyInMap)
}

func TestRemovePlayerFromMap_StartsInstanceUnload(t *testing.T) {
	m := newTestMap(t, Params{Entry: raidEntry(), InstanceID: 3, Difficulty: 3})
	p, _ := addPlayer(t, m, 1, 10, 10)

	if m.UnloadTimer() != 0 {
		t.Errorf("UnloadTimer() = %v, want 0 while occupied", m.UnloadTimer())
	}

	m.RemovePlayerFromMap(p)
	assert.Equal(t, 0, m.PlayerCount())
	assert.Equal(t, 30*time.Minute, m.UnloadTimer())
	assert.False(t, m.CanUnload(29*time.Minute))
	assert.True(t, m.CanUnload(2*time.Minute))
}

func TestVisitRadius(t *testing.T) {
	m := newTestMap(t, Params{})
	m.LoadGrid(10, 10)

	for i, x := range []float32{10, 30, 90, 400} {
		o := NewObject(model.MakeGUID(model.TypeCreature, uint64(i+1)), 1, model.Position{X: x, Y: 10})
		require.NoError(t, m.AddToMap(o))
	}

	got := m.ObjectsInRange(model.Position{X: 10, Y: 10}, 50)
	assert.Len(t, got, 2)

	var visited int
	m.VisitRadius(10, 10, 0, true, func(*Object) { visited++ })
	assert.Equal(t, 2, visited, "zero radius visits the standing cell only")
}

func TestVisitCell_NoCreateSkipsUnloadedGrid(t *testing.T) {
	m := newTestMap(t, Params{Spawns: newSpawnStore(t, creatureSpawn(1, 2000, 2000))})

	c := cell.NewCell(2000, 2000)
	var n int
	m.VisitCell(c.WithNoCreate(), func(*Object) { n++ })
	assert.Equal(t, 0, n)
	assert.False(t, m.IsGridLoadedAt(2000, 2000))

	m.VisitCell(c, func(*Object) { n++ })
	assert.True(t, m.IsGridLoadedAt(2000, 2000))
	assert.Equal(t, 1, n)
}

func TestRelocate(t *testing.T) {
	m := newTestMap(t, Params{})
	m.LoadGrid(10, 10)
	o := NewObject(model.MakeGUID(model.TypeCreature, 1), 1, model.Position{X: 10, Y: 10})
	require.NoError(t, m.AddToMap(o))

	require.NoError(t, m.Relocate(o.GUID(), model.Position{X: 12, Y: 11}))
	assert.Equal(t, float32(12), o.Position().X, "same-cell moves apply immediately")
	assert.Equal(t, 0, m.PendingMoves())

	require.NoError(t, m.Relocate(o.GUID(), model.Position{X: 200, Y: 11}))
	require.NoError(t, m.Relocate(o.GUID(), model.Position{X: 210, Y: 11}))
	assert.Equal(t, float32(12), o.Position().X)
	assert.Equal(t, 1, m.PendingMoves(), "an object is queued once")

	m.MoveAllInMoveList()
	assert.Equal(t, 0, m.PendingMoves())
	assert.Equal(t, float32(210), o.Position().X)
	assert.Equal(t, cell.ComputeCellCoord(210, 11), o.Cell())

	old := m.Grid(cell.ComputeGridCoord(10, 10)).cellAt(cell.ComputeCellCoord(10, 10))
	assert.Equal(t, 0, old.Count())

	assert.ErrorIs(t, m.Relocate(o.GUID(), model.Position{X: 1e7}), ErrInvalidPosition)
	assert.ErrorIs(t, m.Relocate(model.MakeGUID(model.TypeCreature, 99), model.Position{}), ErrNotInMap)
}

func TestRelocate_IntoUnloadedGridReturnsHome(t *testing.T) {
	m := newTestMap(t, Params{})
	m.LoadGrid(10, 10)
	o := NewObject(model.MakeGUID(model.TypeCreature, 1), 1, model.Position{X: 10, Y: 10})
	require.NoError(t, m.AddToMap(o))
	require.NoError(t, m.Relocate(o.GUID(), model.Position{X: 100, Y: 10}))
	m.MoveAllInMoveList()

	require.NoError(t, m.Relocate(o.GUID(), model.Position{X: 2000, Y: 2000}))
	m.MoveAllInMoveList()

	assert.Equal(t, model.Position{X: 10, Y: 10}, o.Position())
	assert.False(t, m.IsGridLoadedAt(2000, 2000))
}

func TestRelocate_ActiveObjectLoadsDestination(t *testing.T) {
	m := newTestMap(t, Params{Spawns: newSpawnStore(t, creatureSpawn(1, 2000, 2000))})
	o := NewObject(model.MakeGUID(model.TypeCreature, 100), 1, model.Position{X: 10, Y: 10})
	m.AddToActive(o)
	require.NoError(t, m.AddToMap(o))

	require.NoError(t, m.Relocate(o.GUID(), model.Position{X: 2000, Y: 2000}))
	m.MoveAllInMoveList()

	assert.True(t, m.IsGridLoadedAt(2000, 2000))
	assert.Equal(t, float32(2000), o.Position().X)
	assert.Len(t, m.ObjectsBySpawnID(spawn.TypeCreature, 1), 1)
}

func TestAddToActive_PinsHomeGrid(t *testing.T) {
	d := creatureSpawn(1, 20, 20)
	d.Active = true
	m := newTestMap(t, Params{Spawns: newSpawnStore(t, d)})
	m.LoadGrid(10, 10)

	g := m.Grid(cell.ComputeGridCoord(20, 20))
	require.NotNil(t, g)
	objs := m.ObjectsBySpawnID(spawn.TypeCreature, 1)
	require.Len(t, objs, 1)
	assert.True(t, g.HasUnloadLock())

	m.RemoveFromActive(objs[0])
	assert.False(t, g.HasUnloadLock())
	m.RemoveFromActive(objs[0])
	assert.False(t, g.HasUnloadLock())
}

func TestRemoveAllObjectsInRemoveList(t *testing.T) {
	m := newTestMap(t, Params{})
	for i := range 3 {
		o := NewObject(model.MakeGUID(model.TypeCreature, uint64(i+1)), 1, model.Position{X: 10, Y: 10})
		require.NoError(t, m.AddToMap(o))
	}
	m.AddObjectToRemoveList(model.MakeGUID(model.TypeCreature, 1))
	m.AddObjectToRemoveList(model.MakeGUID(model.TypeCreature, 3))
	m.AddObjectToRemoveList(model.MakeGUID(model.TypeCreature, 3))
	m.AddObjectToRemoveList(model.MakeGUID(model.TypeCreature, 77))

	if n := m.RemoveAllObjectsInRemoveList(); n != 2 {
		t.Errorf("RemoveAllObjectsInRemoveList() = %d, want 2", n)
	}
	assert.Equal(t, 1, m.ObjectCount())
	assert.NotNil(t, m.Object(model.MakeGUID(model.TypeCreature, 2)))
}

func TestUnloadAll(t *testing.T) {
	script := &fakeScript{}
	m := newTestMap(t, Params{
		Entry:      raidEntry(),
		InstanceID: 4,
		Difficulty: 3,
		Spawns:     newSpawnStore(t, spawnOnMap(creatureSpawn(1, 20, 20), 603)),
		Scripts:    scriptFactory(script),
	})
	m.LoadGrid(10, 10)
	m.LoadGrid(2000, 2000)
	require.Equal(t, 2, m.LoadedGridCount())

	m.UnloadAll()
	assert.Equal(t, 0, m.LoadedGridCount())
	assert.Equal(t, 0, m.ObjectCount())
	assert.True(t, script.closed)
}

func spawnOnMap(d spawn.Data, mapID uint32) spawn.Data {
	d.MapID = mapID
	return d
}
