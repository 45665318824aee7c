package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldcore/internal/instance"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

var (
	_ RespawnBackend = (*RespawnRepository)(nil)
	_ instance.Store = (*InstanceLockRepository)(nil)
	_ spawn.Source   = (*SpawnRepository)(nil)
)

func TestRespawnRepository(t *testing.T) {
	repo := NewRespawnRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SaveRespawn(ctx, rec(1, 0, 300)))
	require.NoError(t, repo.SaveRespawn(ctx, rec(2, 0, 100)))
	require.NoError(t, repo.SaveRespawn(ctx, rec(1, 0, 200)), "upsert")
	require.NoError(t, repo.SaveRespawn(ctx, rec(3, 5, 100)))
	require.NoError(t, repo.SaveRespawn(ctx, rec(4, 6, 100)))

	rows, err := repo.LoadRespawns(ctx, 603, 0)
	require.NoError(t, err)
	assert.Equal(t, []spawn.RespawnRecord{rec(2, 0, 100), rec(1, 0, 200)}, rows, "ordered by due time")

	require.NoError(t, repo.DeleteRespawn(ctx, spawn.TypeCreature, 2, 603, 0))
	rows, err = repo.LoadRespawns(ctx, 603, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, repo.DeleteInstanceRespawns(ctx, 603, 5))
	rows, err = repo.LoadRespawns(ctx, 603, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)

	n, err := repo.DeleteOrphanRespawns(ctx, []uint32{7})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "instance 6 has no lock")
	rows, err = repo.LoadRespawns(ctx, 603, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "open-world rows are kept")
}

func TestInstanceLockRepository(t *testing.T) {
	repo := NewInstanceLockRepository(setupTestDB(t))
	ctx := context.Background()
	expiry := time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC)
	owner := model.MakeGUID(model.TypePlayer, 42)

	err := repo.WithTx(ctx, func(tx instance.Tx) error {
		if err := tx.SaveSharedData(ctx, instance.SharedRow{
			InstanceID: 12,
			LockData:   instance.LockData{CompletedEncountersMask: 3, Data: "1 1 0"},
		}); err != nil {
			return err
		}
		return tx.SaveLock(ctx, instance.LockRow{
			Owner:      uint64(owner),
			MapID:      603,
			Difficulty: 4,
			InstanceID: 12,
			LockData:   instance.LockData{CompletedEncountersMask: 3, Data: "1 1 0", EntranceLocID: 9},
			Expiry:     expiry,
		})
	})
	require.NoError(t, err)

	locks, shared, err := repo.LoadInstanceLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	require.Len(t, shared, 1)
	l := locks[0]
	assert.Equal(t, uint64(owner), l.Owner)
	assert.Equal(t, uint8(4), l.Difficulty)
	assert.Equal(t, "1 1 0", l.Data)
	assert.Equal(t, uint32(9), l.EntranceLocID)
	assert.True(t, expiry.Equal(l.Expiry))
	assert.Equal(t, uint32(3), shared[0].CompletedEncountersMask)

	highest, err := repo.MaxInstanceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), highest)

	n, err := repo.DeleteExpiredLocks(ctx, expiry.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInstanceLockRepository_RollbackOnError(t *testing.T) {
	repo := NewInstanceLockRepository(setupTestDB(t))
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx instance.Tx) error {
		if err := tx.SaveSharedData(ctx, instance.SharedRow{InstanceID: 3}); err != nil {
			return err
		}
		return instance.ErrSharedDataMissing
	})
	require.ErrorIs(t, err, instance.ErrSharedDataMissing)

	_, shared, err := repo.LoadInstanceLocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, shared)
}

func TestInstanceLockRepository_FeedsManager(t *testing.T) {
	repo := NewInstanceLockRepository(setupTestDB(t))
	ctx := context.Background()
	owner := model.MakeGUID(model.TypePlayer, 7)
	e := instance.Entries{MapID: 603, Difficulty: 3, ResetInterval: 7 * 24 * time.Hour}

	mgr := instance.NewManager(repo, 0)
	require.NoError(t, mgr.Load(ctx))
	require.NotNil(t, mgr.CreateInstanceLockForNewInstance(owner, e, 5))
	err := mgr.Commit(ctx, func(tx instance.Tx) error {
		_, err := mgr.UpdateInstanceLockForPlayer(ctx, tx, owner, e,
			instance.UpdateEvent{InstanceID: 5, NewData: "1 0", EncounterBit: 0})
		return err
	})
	require.NoError(t, err)

	reloaded := instance.NewManager(repo, 0)
	require.NoError(t, reloaded.Load(ctx))
	l := reloaded.FindActiveInstanceLock(owner, e)
	require.NotNil(t, l)
	assert.Equal(t, uint32(5), l.InstanceID)
	assert.Equal(t, uint32(1), l.Data.CompletedEncountersMask)
	assert.Equal(t, "1 0", l.Data.Data)
}

func TestSpawnRepository(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewSpawnRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.SaveSpawnGroup(ctx, spawn.Group{ID: 5, Name: "watch", MapID: 0, Flags: spawn.GroupFlagManualSpawn}))
	require.NoError(t, repo.SaveSpawn(ctx, spawn.Data{
		Metadata:     spawn.Metadata{Type: spawn.TypeCreature, SpawnID: 1, MapID: 0},
		GroupID:      5,
		Entry:        68,
		Position:     model.Position{X: 20, Y: 30, Z: 5},
		RespawnDelay: 5 * time.Minute,
	}))
	require.NoError(t, repo.SaveSpawn(ctx, spawn.Data{
		Metadata:     spawn.Metadata{Type: spawn.TypeGameObject, SpawnID: 2, MapID: 0},
		Entry:        1731,
		Position:     model.Position{X: 40, Y: 40},
		Difficulties: []uint8{1, 2},
		PoolID:       4,
	}))
	_, err := pool.Exec(ctx, `INSERT INTO linked_respawns VALUES (1, 2, 0, 1)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO spawn_pools VALUES (4, 0, 1)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO spawn_pool_members VALUES (4, 1, 2)`)
	require.NoError(t, err)

	store := spawn.NewStore()
	require.NoError(t, store.Load(ctx, repo))

	d := store.Data(spawn.TypeCreature, 1)
	require.NotNil(t, d)
	assert.Equal(t, uint32(5), d.Group.ID)
	assert.Equal(t, 5*time.Minute, d.RespawnDelay)

	obj := store.Data(spawn.TypeGameObject, 2)
	require.NotNil(t, obj)
	assert.Equal(t, []uint8{1, 2}, obj.Difficulties)

	master, ok := store.LinkedRespawn(spawn.Key{Type: spawn.TypeGameObject, SpawnID: 2})
	require.True(t, ok)
	assert.Equal(t, spawn.Key{Type: spawn.TypeCreature, SpawnID: 1}, master)

	pools := store.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, []spawn.Key{{Type: spawn.TypeGameObject, SpawnID: 2}}, pools[0].Members)
}
