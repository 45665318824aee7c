package world

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/worldcore/internal/instance"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

var testEpoch = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: testEpoch} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSession struct {
	mu      sync.Mutex
	updates int
	notices []Notice
}

func (s *fakeSession) Update(time.Duration) {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
}

func (s *fakeSession) Notify(n Notice) {
	s.mu.Lock()
	s.notices = append(s.notices, n)
	s.mu.Unlock()
}

func (s *fakeSession) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *fakeSession) Notices(kind NoticeKind) []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notice
	for _, n := range s.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type visibilityEvent struct {
	viewer, obj model.GUID
	appeared    bool
}

type recordingVisibility struct {
	mu     sync.Mutex
	events []visibilityEvent
}

func (v *recordingVisibility) ObjectAppeared(viewer, obj model.GUID) {
	v.mu.Lock()
	v.events = append(v.events, visibilityEvent{viewer: viewer, obj: obj, appeared: true})
	v.mu.Unlock()
}

func (v *recordingVisibility) ObjectDisappeared(viewer, obj model.GUID) {
	v.mu.Lock()
	v.events = append(v.events, visibilityEvent{viewer: viewer, obj: obj})
	v.mu.Unlock()
}

func (v *recordingVisibility) Events() []visibilityEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]visibilityEvent, len(v.events))
	copy(out, v.events)
	return out
}

type recordingUpdates struct {
	mu      sync.Mutex
	flushes [][]model.GUID
}

func (u *recordingUpdates) FlushObjectUpdates(_, _ uint32, objects []model.GUID) {
	u.mu.Lock()
	u.flushes = append(u.flushes, objects)
	u.mu.Unlock()
}

type respawnRowKey struct {
	t       spawn.Type
	spawnID uint64
}

type memRespawns struct {
	mu      sync.Mutex
	rows    map[respawnRowKey]spawn.RespawnRecord
	saves   int
	deletes int
	loadErr error
}

func newMemRespawns() *memRespawns {
	return &memRespawns{rows: make(map[respawnRowKey]spawn.RespawnRecord)}
}

func (s *memRespawns) LoadRespawns(_ context.Context, mapID, instanceID uint32) ([]spawn.RespawnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []spawn.RespawnRecord
	for _, r := range s.rows {
		if r.MapID == mapID && r.InstanceID == instanceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memRespawns) SaveRespawn(rec spawn.RespawnRecord) {
	s.mu.Lock()
	s.rows[respawnRowKey{rec.Type, rec.SpawnID}] = rec
	s.saves++
	s.mu.Unlock()
}

func (s *memRespawns) DeleteRespawn(t spawn.Type, spawnID uint64, _, _ uint32) {
	s.mu.Lock()
	delete(s.rows, respawnRowKey{t, spawnID})
	s.deletes++
	s.mu.Unlock()
}

func (s *memRespawns) DeleteInstanceRespawns(mapID, instanceID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.rows {
		if r.MapID == mapID && r.InstanceID == instanceID {
			delete(s.rows, k)
		}
	}
}

func (s *memRespawns) Row(t spawn.Type, spawnID uint64) (spawn.RespawnRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[respawnRowKey{t, spawnID}]
	return r, ok
}

type staticConditions map[uint32]bool

func (c staticConditions) SpawnGroupConditionsMet(_, _, groupID uint32) bool { return c[groupID] }

type fakeScript struct {
	mu         sync.Mutex
	created    int
	loaded     string
	mask       uint32
	entered    []model.GUID
	updates    int
	inProgress bool
	closed     bool
	data       string
}

func (s *fakeScript) Create() {
	s.mu.Lock()
	s.created++
	s.mu.Unlock()
}

func (s *fakeScript) Load(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data == "corrupt" {
		return errors.New("corrupt instance data")
	}
	s.loaded = data
	return nil
}

func (s *fakeScript) Update(time.Duration) {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
}

func (s *fakeScript) OnPlayerEnter(guid model.GUID) {
	s.mu.Lock()
	s.entered = append(s.entered, guid)
	s.mu.Unlock()
}

func (s *fakeScript) SaveData() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *fakeScript) SetCompletedEncountersMask(mask uint32) {
	s.mu.Lock()
	s.mask = mask
	s.mu.Unlock()
}

func (s *fakeScript) IsEncounterInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

func (s *fakeScript) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func scriptFactory(s *fakeScript) ScriptFactory {
	return func(string, *Map) (InstanceScript, error) { return s, nil }
}

type memLockStore struct {
	mu     sync.Mutex
	locks  []instance.LockRow
	shared []instance.SharedRow
}

func (s *memLockStore) LoadInstanceLocks(context.Context) ([]instance.LockRow, []instance.SharedRow, error) {
	return nil, nil, nil
}

func (s *memLockStore) WithTx(_ context.Context, fn func(instance.Tx) error) error { return fn(s) }

func (s *memLockStore) SaveSharedData(_ context.Context, row instance.SharedRow) error {
	s.mu.Lock()
	s.shared = append(s.shared, row)
	s.mu.Unlock()
	return nil
}

func (s *memLockStore) DeleteSharedData(context.Context, uint32) error { return nil }

func (s *memLockStore) SaveLock(_ context.Context, row instance.LockRow) error {
	s.mu.Lock()
	s.locks = append(s.locks, row)
	s.mu.Unlock()
	return nil
}

func continentEntry() *Entry {
	return &Entry{ID: 0, Name: "Eastern Kingdoms", Kind: KindCommon, ParentID: -1}
}

func raidEntry() *Entry {
	return &Entry{
		ID:         603,
		Name:       "Ulduar",
		Kind:       KindRaid,
		ParentID:   -1,
		ScriptName: "instance_ulduar",
		Difficulties: []DifficultyEntry{
			{ID: 3, MaxPlayers: 10, ResetInterval: 7 * 24 * time.Hour},
			{ID: 4, MaxPlayers: 25, ResetInterval: 7 * 24 * time.Hour},
		},
	}
}

func newTestMap(t *testing.T, p Params) *Map {
	t.Helper()
	if p.Entry == nil {
		p.Entry = continentEntry()
	}
	if p.Config.Workers == 0 {
		p.Config = DefaultConfig()
	}
	m, err := NewMap(context.Background(), p)
	require.NoError(t, err)
	return m
}

func creatureSpawn(id uint64, x, y float32) spawn.Data {
	return spawn.Data{
		Metadata:     spawn.Metadata{Type: spawn.TypeCreature, SpawnID: id},
		Entry:        uint32(1000 + id),
		Position:     model.Position{X: x, Y: y},
		RespawnDelay: 5 * time.Minute,
	}
}

func newSpawnStore(t *testing.T, data ...spawn.Data) *spawn.Store {
	t.Helper()
	s := spawn.NewStore()
	for _, d := range data {
		require.NoError(t, s.AddSpawn(d))
	}
	return s
}

func playerGUID(n uint64) model.GUID { return model.MakeGUID(model.TypePlayer, n) }

func addPlayer(t *testing.T, m *Map, n uint64, x, y float32) (*Player, *fakeSession) {
	t.Helper()
	s := &fakeSession{}
	p := NewPlayer(playerGUID(n), s, model.Position{X: x, Y: y})
	require.NoError(t, m.AddPlayerToMap(p))
	return p, s
}
