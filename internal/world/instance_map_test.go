package world

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldcore/internal/instance"
	"github.com/udisondev/worldcore/internal/model"
)

func newLockManager(clock *testClock) (*instance.Manager, *memLockStore) {
	store := &memLockStore{}
	locks := instance.NewManager(store, 0)
	locks.SetClock(clock.Now)
	return locks, store
}

func TestCreateInstanceData(t *testing.T) {
	clock := newTestClock()
	locks, _ := newLockManager(clock)
	entries := raidEntry().LockEntries(3)

	tests := []struct {
		name        string
		lock        func() *instance.Lock
		wantCreated int
		wantLoaded  string
		wantMask    uint32
	}{
		{
			name:        "no lock",
			lock:        func() *instance.Lock { return nil },
			wantCreated: 1,
		},
		{
			name: "fresh lock",
			lock: func() *instance.Lock {
				return locks.CreateInstanceLockForNewInstance(playerGUID(10), entries, 5)
			},
			wantCreated: 1,
		},
		{
			name: "saved progress",
			lock: func() *instance.Lock {
				l := locks.CreateInstanceLockForNewInstance(playerGUID(11), entries, 5)
				l.Data.CompletedEncountersMask = 3
				l.Data.Data = "1 1 0"
				return l
			},
			wantLoaded: "1 1 0",
			wantMask:   3,
		},
		{
			name: "mask without data",
			lock: func() *instance.Lock {
				l := locks.CreateInstanceLockForNewInstance(playerGUID(12), entries, 5)
				l.Data.CompletedEncountersMask = 1
				return l
			},
			wantCreated: 1,
			wantMask:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := &fakeScript{}
			m := newTestMap(t, Params{
				Entry:      raidEntry(),
				InstanceID: 5,
				Difficulty: 3,
				Locks:      locks,
				Lock:       tt.lock(),
				Scripts:    scriptFactory(script),
			})

			assert.Same(t, script, m.InstanceScript())
			if script.created != tt.wantCreated {
				t.Errorf("Create() calls = %d, want %d", script.created, tt.wantCreated)
			}
			assert.Equal(t, tt.wantLoaded, script.loaded)
			assert.Equal(t, tt.wantMask, script.mask)

			m.CreateInstanceData(scriptFactory(&fakeScript{}))
			assert.Same(t, script, m.InstanceScript(), "script is built once")
		})
	}
}

func TestCannotEnter_MaxPlayers(t *testing.T) {
	entry := raidEntry()
	entry.Difficulties[0].MaxPlayers = 1
	m := newTestMap(t, Params{Entry: entry, InstanceID: 5, Difficulty: 3})
	addPlayer(t, m, 1, 10, 10)

	second := NewPlayer(playerGUID(2), nil, model.Position{X: 10, Y: 10})
	if st := m.CannotEnter(second); st != EnterMaxPlayers {
		t.Errorf("CannotEnter() = %v, want %v", st, EnterMaxPlayers)
	}
	assert.ErrorIs(t, m.AddPlayerToMap(second), ErrMaxPlayers)

	gm := NewPlayer(playerGUID(3), nil, model.Position{X: 10, Y: 10})
	gm.SetGameMaster(true)
	assert.Equal(t, EnterOK, m.CannotEnter(gm))
	require.NoError(t, m.AddPlayerToMap(gm))
	assert.Equal(t, 1, m.PlayerCountExceptGMs())
}

func TestCannotEnter_EncounterInProgress(t *testing.T) {
	script := &fakeScript{inProgress: true}
	m := newTestMap(t, Params{Entry: raidEntry(), InstanceID: 5, Difficulty: 3, Scripts: scriptFactory(script)})

	p := NewPlayer(playerGUID(1), nil, model.Position{X: 10, Y: 10})
	assert.Equal(t, EnterZoneInCombat, m.CannotEnter(p))

	p.SetLoading(true)
	assert.Equal(t, EnterOK, m.CannotEnter(p), "players logging in are let through")
}

func TestCannotEnter_LockedToDifferentInstance(t *testing.T) {
	clock := newTestClock()
	locks, _ := newLockManager(clock)
	entries := raidEntry().LockEntries(3)

	p := NewPlayer(playerGUID(1), nil, model.Position{X: 10, Y: 10})
	err := locks.Commit(context.Background(), func(tx instance.Tx) error {
		_, err := locks.UpdateInstanceLockForPlayer(context.Background(), tx, p.GUID(), entries,
			instance.UpdateEvent{InstanceID: 7, EncounterBit: 0})
		return err
	})
	require.NoError(t, err)

	lock := locks.CreateInstanceLockForNewInstance(playerGUID(2), entries, 9)
	m := newTestMap(t, Params{Entry: raidEntry(), InstanceID: 9, Difficulty: 3, Locks: locks, Lock: lock})

	assert.Equal(t, EnterWrongInstance, m.CannotEnter(p))
	assert.ErrorIs(t, m.AddPlayerToMap(p), ErrWrongInstance)
	assert.ErrorIs(t, EnterWrongInstance.Err(), ErrWrongInstance)
	assert.NoError(t, EnterOK.Err())
}

func TestPendingBind(t *testing.T) {
	clock := newTestClock()
	locks, store := newLockManager(clock)
	entries := raidEntry().LockEntries(3)
	lock := locks.CreateInstanceLockForNewInstance(playerGUID(50), entries, 9)
	lock.Data.CompletedEncountersMask = 1

	script := &fakeScript{data: "1 0 0"}
	m := newTestMap(t, Params{
		Entry:      raidEntry(),
		InstanceID: 9,
		Difficulty: 3,
		Locks:      locks,
		Lock:       lock,
		Scripts:    scriptFactory(script),
	})
	p, session := addPlayer(t, m, 1, 10, 10)

	notices := session.Notices(NoticePendingBind)
	require.Len(t, notices, 1)
	assert.Equal(t, uint32(1), notices[0].CompletedMask)
	id, delay := p.PendingBind()
	assert.Equal(t, uint32(9), id)
	assert.Equal(t, time.Minute, delay)
	assert.Equal(t, []model.GUID{p.GUID()}, script.entered)

	m.Update(30 * time.Second)
	assert.Empty(t, session.Notices(NoticeInstanceBound))

	m.Update(30 * time.Second)
	m.DelayedUpdate(0)
	require.Len(t, session.Notices(NoticeInstanceBound), 1)
	own := locks.FindActiveInstanceLock(p.GUID(), entries)
	require.NotNil(t, own)
	assert.Equal(t, uint32(9), own.InstanceID)
	assert.NotEmpty(t, store.locks)
}

func TestUpdateInstanceLock(t *testing.T) {
	clock := newTestClock()
	locks, store := newLockManager(clock)
	entries := raidEntry().LockEntries(3)
	lock := locks.CreateInstanceLockForNewInstance(playerGUID(1), entries, 9)

	script := &fakeScript{data: "done"}
	m := newTestMap(t, Params{
		Entry:      raidEntry(),
		InstanceID: 9,
		Difficulty: 3,
		Locks:      locks,
		Lock:       lock,
		Scripts:    scriptFactory(script),
	})
	p, session := addPlayer(t, m, 1, 10, 10)
	gm := NewPlayer(playerGUID(2), &fakeSession{}, model.Position{X: 10, Y: 10})
	gm.SetGameMaster(true)
	require.NoError(t, m.AddPlayerToMap(gm))

	m.CompleteEncounter(2)

	own := locks.FindActiveInstanceLock(p.GUID(), entries)
	require.NotNil(t, own)
	assert.Equal(t, uint32(4), own.Data.CompletedEncountersMask)
	assert.Equal(t, "done", own.Data.Data)
	assert.Len(t, session.Notices(NoticeInstanceBound), 1)
	assert.Nil(t, locks.FindActiveInstanceLock(gm.GUID(), entries), "game masters are not bound")
	assert.Len(t, store.locks, 1)

	m.CompleteEncounter(3)
	assert.Len(t, session.Notices(NoticeInstanceBound), 1, "existing binds are not announced again")

	continent := newTestMap(t, Params{})
	assert.ErrorIs(t, continent.UpdateInstanceLock(0), ErrNotInstanceable)
}

func TestReset(t *testing.T) {
	t.Run("empty instance unloads", func(t *testing.T) {
		m := newTestMap(t, Params{Entry: raidEntry(), InstanceID: 5, Difficulty: 3})
		assert.Equal(t, ResetSuccess, m.Reset(ResetManual))
		assert.True(t, m.CanUnload(time.Millisecond))
	})

	t.Run("populated instance", func(t *testing.T) {
		m := newTestMap(t, Params{Entry: raidEntry(), InstanceID: 5, Difficulty: 3})
		_, session := addPlayer(t, m, 1, 10, 10)
		assert.Equal(t, ResetNotEmpty, m.Reset(ResetManual))
		assert.Len(t, session.Notices(NoticeResetFailed), 1)
	})

	t.Run("completed encounters", func(t *testing.T) {
		clock := newTestClock()
		locks, _ := newLockManager(clock)
		lock := locks.CreateInstanceLockForNewInstance(playerGUID(1), raidEntry().LockEntries(3), 5)
		lock.Data.CompletedEncountersMask = 1
		m := newTestMap(t, Params{Entry: raidEntry(), InstanceID: 5, Difficulty: 3, Locks: locks, Lock: lock})

		assert.Equal(t, ResetCannotReset, m.Reset(ResetManual))
		assert.Equal(t, ResetCannotReset, m.Reset(ResetOnChangeDifficulty))
		assert.Equal(t, ResetSuccess, m.Reset(ResetExpire))
	})

	t.Run("not an instance", func(t *testing.T) {
		m := newTestMap(t, Params{})
		assert.Equal(t, ResetCannotReset, m.Reset(ResetManual))
	})
}

func TestInstanceExpiry(t *testing.T) {
	clock := newTestClock()
	locks, _ := newLockManager(clock)
	script := &fakeScript{}
	m := newTestMap(t, Params{Entry: raidEntry(), InstanceID: 5, Difficulty: 3, Locks: locks, Scripts: scriptFactory(script)})
	_, session := addPlayer(t, m, 1, 10, 10)

	reset := m.ResetTime()
	require.False(t, reset.IsZero())
	require.True(t, reset.After(clock.Now()))

	m.Update(time.Second)
	assert.Empty(t, session.Notices(NoticeInstanceExpired))

	clock.Advance(reset.Sub(clock.Now()))
	m.Update(time.Second)
	assert.Len(t, session.Notices(NoticeInstanceExpired), 1)
	assert.True(t, m.ResetTime().After(reset))
	assert.Equal(t, 2, script.updates)
}

func TestEnterState_String(t *testing.T) {
	if got := EnterMaxPlayers.String(); got != "max players" {
		t.Errorf("String() = %q, want %q", got, "max players")
	}
	assert.Equal(t, "not empty", ResetNotEmpty.String())
	assert.ErrorIs(t, EnterError.Err(), ErrCannotEnter)
}

func TestBattleground_EntryAndTeams(t *testing.T) {
	m := newTestMap(t, Params{Entry: &Entry{ID: 30, Kind: KindBattleground, ParentID: -1}, InstanceID: 2})
	require.True(t, m.IsBattlegroundOrArena())

	stray := NewPlayer(playerGUID(1), nil, model.Position{X: 10, Y: 10})
	stray.SetBattlegroundID(3)
	assert.Equal(t, EnterWrongInstance, m.CannotEnter(stray))
	assert.ErrorIs(t, m.AddPlayerToMap(stray), ErrWrongInstance)

	for n, team := range map[uint64]uint32{2: 67, 3: 67, 4: 469} {
		p := NewPlayer(playerGUID(n), &fakeSession{}, model.Position{X: 10, Y: 10})
		p.SetBattlegroundID(2)
		p.SetTeam(team)
		require.NoError(t, m.AddPlayerToMap(p))
	}
	assert.Equal(t, 2, m.TeamPlayerCount(67))
	assert.Equal(t, 1, m.TeamPlayerCount(469))

	m.RemovePlayerFromMap(m.Player(playerGUID(4)))
	assert.Equal(t, 0, m.TeamPlayerCount(469))
	assert.Equal(t, 0, newTestMap(t, Params{}).TeamPlayerCount(67))
}
