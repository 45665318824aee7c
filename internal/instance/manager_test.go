package instance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/udisondev/worldcore/internal/model"
)

type memStore struct {
	locks   []LockRow
	shared  []SharedRow
	saved   []string
	deleted []uint32
	failTx  bool
}

func (s *memStore) LoadInstanceLocks(context.Context) ([]LockRow, []SharedRow, error) {
	return s.locks, s.shared, nil
}

func (s *memStore) WithTx(_ context.Context, fn func(Tx) error) error {
	if s.failTx {
		return errors.New("tx failed")
	}
	return fn(s)
}

func (s *memStore) SaveSharedData(_ context.Context, row SharedRow) error {
	s.saved = append(s.saved, "shared")
	s.shared = append(s.shared, row)
	return nil
}

func (s *memStore) DeleteSharedData(_ context.Context, id uint32) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *memStore) SaveLock(_ context.Context, row LockRow) error {
	s.saved = append(s.saved, "lock")
	s.locks = append(s.locks, row)
	return nil
}

var (
	now    = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	raid   = Entries{MapID: 603, Difficulty: 4, ResetInterval: 7 * 24 * time.Hour}
	heroic = Entries{MapID: 574, Difficulty: 2, ResetInterval: 24 * time.Hour, InstanceIDBound: true}
	normal = Entries{MapID: 36, Difficulty: 1}
	alice  = model.MakeGUID(model.TypePlayer, 1)
	bob    = model.MakeGUID(model.TypePlayer, 2)
)

func newTestManager(store *memStore) *Manager {
	m := NewManager(store, 0)
	m.SetClock(func() time.Time { return now })
	return m
}

func TestCreateInstanceLockForNewInstance(t *testing.T) {
	m := newTestManager(&memStore{})

	if l := m.CreateInstanceLockForNewInstance(alice, normal, 5); l != nil {
		t.Errorf("CreateInstanceLockForNewInstance(normal) = %+v; want nil", l)
	}

	l := m.CreateInstanceLockForNewInstance(alice, raid, 5)
	if l == nil {
		t.Fatal("CreateInstanceLockForNewInstance(raid) = nil")
	}
	if got := m.FindActiveInstanceLock(alice, raid); got != l {
		t.Errorf("FindActiveInstanceLock() = %p; want temporary lock %p", got, l)
	}
	if !l.Expiry.After(now) {
		t.Errorf("Expiry = %v; want after %v", l.Expiry, now)
	}
	if m.LockCount() != 0 {
		t.Errorf("LockCount() = %d; want 0 (temporary locks are not permanent)", m.LockCount())
	}
}

func TestNextResetTime(t *testing.T) {
	m := newTestManager(&memStore{})
	got := m.NextResetTime(Entries{ResetInterval: 24 * time.Hour})
	want := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextResetTime() = %v; want %v", got, want)
	}
	if !m.NextResetTime(normal).IsZero() {
		t.Errorf("NextResetTime(normal) should be zero")
	}
}

func TestCanJoinInstanceLock(t *testing.T) {
	m := newTestManager(&memStore{})
	own := m.CreateInstanceLockForNewInstance(alice, raid, 5)
	other := &Lock{InstanceID: 9, Data: &LockData{}}

	if got := m.CanJoinInstanceLock(alice, raid, own); got != AbortNone {
		t.Errorf("CanJoinInstanceLock(own) = %v; want none", got)
	}
	if got := m.CanJoinInstanceLock(alice, raid, other); got != AbortLockedToDifferentInstance {
		t.Errorf("CanJoinInstanceLock(other) = %v; want locked to different instance", got)
	}
	if got := m.CanJoinInstanceLock(bob, raid, other); got != AbortNone {
		t.Errorf("CanJoinInstanceLock(no lock) = %v; want none", got)
	}

	flex := raid
	flex.FlexLocking = true
	fl := m.CreateInstanceLockForNewInstance(bob, flex, 11)
	fl.Data.CompletedEncountersMask = 0b101
	if got := m.CanJoinInstanceLock(bob, flex, &Lock{InstanceID: 12, Data: &LockData{CompletedEncountersMask: 0b001}}); got != AbortAlreadyCompletedEncounter {
		t.Errorf("CanJoinInstanceLock(flex) = %v; want already completed encounter", got)
	}
	if got := m.CanJoinInstanceLock(bob, flex, &Lock{InstanceID: 12, Data: &LockData{CompletedEncountersMask: 0b111}}); got != AbortNone {
		t.Errorf("CanJoinInstanceLock(flex superset) = %v; want none", got)
	}
}

func TestUpdateInstanceLockForPlayerPromotesTemporary(t *testing.T) {
	store := &memStore{}
	m := newTestManager(store)
	tmp := m.CreateInstanceLockForNewInstance(alice, raid, 5)

	ctx := context.Background()
	var got *Lock
	err := m.Commit(ctx, func(tx Tx) error {
		var err error
		got, err = m.UpdateInstanceLockForPlayer(ctx, tx, alice, raid, UpdateEvent{InstanceID: 5, NewData: "boss1", EncounterBit: 0})
		return err
	})
	if err != nil {
		t.Fatalf("UpdateInstanceLockForPlayer() error = %v", err)
	}
	if got != tmp {
		t.Errorf("permanent lock should be the promoted temporary lock")
	}
	if got.Data.CompletedEncountersMask != 1 || got.Data.Data != "boss1" {
		t.Errorf("lock data = %+v; want mask 1 and data boss1", *got.Data)
	}
	if m.LockCount() != 1 {
		t.Errorf("LockCount() = %d; want 1", m.LockCount())
	}
	if len(store.locks) != 1 || store.locks[0].Owner != uint64(alice) {
		t.Errorf("persisted rows = %+v", store.locks)
	}
	if ids := m.InstanceIDs(); len(ids) != 1 || ids[0] != 5 {
		t.Errorf("InstanceIDs() = %v; want [5]", ids)
	}
}

func TestSharedLockOrdering(t *testing.T) {
	store := &memStore{}
	m := newTestManager(store)
	m.CreateInstanceLockForNewInstance(alice, heroic, 8)

	ctx := context.Background()
	ev := UpdateEvent{InstanceID: 8, NewData: "d", EncounterBit: 2}
	err := m.Commit(ctx, func(tx Tx) error {
		if err := m.UpdateSharedInstanceLock(ctx, tx, ev); err != nil {
			return err
		}
		for _, p := range []model.GUID{alice, bob} {
			if _, err := m.UpdateInstanceLockForPlayer(ctx, tx, p, heroic, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	want := []string{"shared", "lock", "lock"}
	if len(store.saved) != len(want) {
		t.Fatalf("saved = %v; want %v", store.saved, want)
	}
	for i := range want {
		if store.saved[i] != want[i] {
			t.Fatalf("saved = %v; want %v", store.saved, want)
		}
	}

	a := m.FindActiveInstanceLock(alice, heroic)
	b := m.FindActiveInstanceLock(bob, heroic)
	if a.Data != b.Data {
		t.Errorf("instance-id-bound locks must share data")
	}
	if a.Data.CompletedEncountersMask != 1<<2 {
		t.Errorf("shared mask = %b; want 100", a.Data.CompletedEncountersMask)
	}
	if m.MaxInstanceID() != 8 {
		t.Errorf("MaxInstanceID() = %d; want 8", m.MaxInstanceID())
	}
}

func TestUpdateSharedInstanceLockMissing(t *testing.T) {
	m := newTestManager(&memStore{})
	err := m.UpdateSharedInstanceLock(context.Background(), &memStore{}, UpdateEvent{InstanceID: 77})
	if !errors.Is(err, ErrSharedDataMissing) {
		t.Errorf("UpdateSharedInstanceLock() error = %v; want ErrSharedDataMissing", err)
	}
}

func TestLoadAndExpiry(t *testing.T) {
	store := &memStore{
		shared: []SharedRow{{InstanceID: 3, LockData: LockData{CompletedEncountersMask: 7}}},
		locks: []LockRow{
			{Owner: uint64(alice), MapID: heroic.MapID, Difficulty: heroic.Difficulty, InstanceID: 3, Expiry: now.Add(time.Hour)},
			{Owner: uint64(bob), MapID: raid.MapID, Difficulty: raid.Difficulty, InstanceID: 4, Expiry: now.Add(-time.Hour)},
		},
	}
	m := newTestManager(store)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	a := m.FindActiveInstanceLock(alice, heroic)
	if a == nil || !a.Shared || a.Data.CompletedEncountersMask != 7 {
		t.Fatalf("alice lock = %+v; want shared lock with mask 7", a)
	}
	if m.FindActiveInstanceLock(bob, raid) != nil {
		t.Errorf("expired lock should not be active")
	}

	if err := m.SetExtended(context.Background(), bob, raid, true); err != nil {
		t.Fatalf("SetExtended() error = %v", err)
	}
	if m.FindActiveInstanceLock(bob, raid) == nil {
		t.Errorf("extended lock should stay active after expiry")
	}
	if err := m.SetExtended(context.Background(), alice, raid, true); !errors.Is(err, ErrLockNotFound) {
		t.Errorf("SetExtended(missing) error = %v; want ErrLockNotFound", err)
	}
}

func TestOnInstanceDestroyed(t *testing.T) {
	store := &memStore{}
	m := newTestManager(store)
	m.CreateInstanceLockForNewInstance(alice, heroic, 8)

	if err := m.OnInstanceDestroyed(context.Background(), 8); err != nil {
		t.Fatalf("OnInstanceDestroyed() error = %v", err)
	}
	if m.FindActiveInstanceLock(alice, heroic) != nil {
		t.Errorf("temporary lock should be dropped with its instance")
	}
	if len(store.deleted) != 1 || store.deleted[0] != 8 {
		t.Errorf("deleted shared = %v; want [8]", store.deleted)
	}
	if m.IsReferenced(8) {
		t.Errorf("IsReferenced(8) = true; want false")
	}
}
