package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldcore/internal/spawn"
	"github.com/udisondev/worldcore/internal/testutil"
	"github.com/udisondev/worldcore/internal/world"
)

var _ world.RespawnStore = (*RespawnWriter)(nil)

func rec(id uint64, instanceID uint32, due int64) spawn.RespawnRecord {
	return spawn.RespawnRecord{Type: spawn.TypeCreature, SpawnID: id, MapID: 603, InstanceID: instanceID, RespawnTime: due}
}

func TestRespawnWriter_AppliesInOrder(t *testing.T) {
	backend := newMemBackend()
	w := NewRespawnWriter(backend, 4, time.Second)
	defer w.Close()

	w.SaveRespawn(rec(1, 1, 100))
	w.SaveRespawn(rec(2, 1, 200))
	w.DeleteRespawn(spawn.TypeCreature, 1, 603, 1)
	w.SaveRespawn(rec(3, 2, 300))
	w.DeleteInstanceRespawns(603, 2)

	ctx := testutil.ContextWithTimeout(t, time.Second)
	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, []string{"save", "save", "delete", "save", "delete_instance"}, backend.ops())

	rows, err := w.LoadRespawns(ctx, 603, 1)
	require.NoError(t, err)
	assert.Equal(t, []spawn.RespawnRecord{rec(2, 1, 200)}, rows)

	rows, err = w.LoadRespawns(ctx, 603, 2)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRespawnWriter_LoadSeesQueuedWrites(t *testing.T) {
	backend := newMemBackend()
	backend.gate = make(chan struct{})
	w := NewRespawnWriter(backend, 16, time.Second)
	defer w.Close()

	w.SaveRespawn(rec(7, 0, 50))

	loaded := make(chan []spawn.RespawnRecord, 1)
	go func() {
		rows, err := w.LoadRespawns(context.Background(), 603, 0)
		assert.NoError(t, err)
		loaded <- rows
	}()

	select {
	case <-loaded:
		t.Fatal("LoadRespawns() returned before the queued save was applied")
	case <-time.After(20 * time.Millisecond):
	}
	close(backend.gate)

	select {
	case rows := <-loaded:
		assert.Equal(t, []spawn.RespawnRecord{rec(7, 0, 50)}, rows)
	case <-time.After(time.Second):
		t.Fatal("LoadRespawns() did not return")
	}
}

func TestRespawnWriter_FailuresAreLogged(t *testing.T) {
	backend := newMemBackend()
	backend.fail = testutil.ErrSimulated
	w := NewRespawnWriter(backend, 0, 0)

	w.SaveRespawn(rec(1, 0, 10))
	w.SaveRespawn(rec(2, 0, 20))
	w.Close()

	assert.Equal(t, []string{"save", "save"}, backend.ops(), "a failed write does not stop the writer")
}

func TestRespawnWriter_Close(t *testing.T) {
	backend := newMemBackend()
	w := NewRespawnWriter(backend, 8, time.Second)

	for i := range uint64(5) {
		w.SaveRespawn(rec(i+1, 0, 10))
	}
	w.Close()
	w.Close()
	if got := len(backend.ops()); got != 5 {
		t.Errorf("applied writes = %d, want 5 (queue drained on close)", got)
	}

	w.SaveRespawn(rec(9, 0, 10))
	assert.NoError(t, w.Flush(context.Background()), "flush after close is a no-op")
	assert.Len(t, backend.ops(), 5)
}

func TestRespawnWriter_FlushHonoursContext(t *testing.T) {
	backend := newMemBackend()
	backend.gate = make(chan struct{})
	w := NewRespawnWriter(backend, 8, time.Second)
	t.Cleanup(func() {
		close(backend.gate)
		w.Close()
	})

	w.SaveRespawn(rec(1, 0, 10))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Flush(ctx), context.DeadlineExceeded)
}
