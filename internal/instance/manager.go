package instance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/worldcore/internal/model"
)

// Store persists instance locks.
type Store interface {
	LoadInstanceLocks(ctx context.Context) ([]LockRow, []SharedRow, error)
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is one persistence transaction.
type Tx interface {
	SaveSharedData(ctx context.Context, row SharedRow) error
	DeleteSharedData(ctx context.Context, instanceID uint32) error
	SaveLock(ctx context.Context, row LockRow) error
}

// Manager owns every instance lock. Thread-safe.
type Manager struct {
	mu        sync.RWMutex
	locks     map[model.GUID]map[lockKey]*Lock
	temporary map[model.GUID]map[lockKey]*Lock
	shared    map[uint32]*LockData
	store     Store

	resetOffset time.Duration
	now         func() time.Time
}

// NewManager creates a manager. resetOffset shifts reset boundaries from midnight UTC.
func NewManager(store Store, resetOffset time.Duration) *Manager {
	return &Manager{
		locks:       make(map[model.GUID]map[lockKey]*Lock, 64),
		temporary:   make(map[model.GUID]map[lockKey]*Lock, 16),
		shared:      make(map[uint32]*LockData, 16),
		store:       store,
		resetOffset: resetOffset,
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Now returns the manager's current time.
func (m *Manager) Now() time.Time { return m.now() }

// Load reads persisted locks. Expired locks that were not extended are still kept
// so reset notices can reference them; FindActiveInstanceLock filters them.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return ErrNoStore
	}
	rows, shared, err := m.store.LoadInstanceLocks(ctx)
	if err != nil {
		return fmt.Errorf("load instance locks: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range shared {
		d := s.LockData
		m.shared[s.InstanceID] = &d
	}
	for _, r := range rows {
		l := &Lock{
			Owner:      model.GUID(r.Owner),
			MapID:      r.MapID,
			Difficulty: r.Difficulty,
			InstanceID: r.InstanceID,
			Expiry:     r.Expiry,
			Extended:   r.Extended,
		}
		if d, ok := m.shared[r.InstanceID]; ok {
			l.Data = d
			l.Shared = true
		} else {
			d := r.LockData
			l.Data = &d
		}
		m.put(m.locks, l)
	}
	slog.Info("instance locks loaded", "locks", len(rows), "shared", len(shared))
	return nil
}

func (m *Manager) put(set map[model.GUID]map[lockKey]*Lock, l *Lock) {
	byKey, ok := set[l.Owner]
	if !ok {
		byKey = make(map[lockKey]*Lock, 4)
		set[l.Owner] = byKey
	}
	byKey[lockKey{mapID: l.MapID, difficulty: l.Difficulty}] = l
}

// FindActiveInstanceLock returns owner's lock for entries, permanent first, then temporary.
// Expired locks are returned only while extended.
func (m *Manager) FindActiveInstanceLock(owner model.GUID, e Entries) *Lock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(owner, e, false, true)
}

func (m *Manager) findLocked(owner model.GUID, e Entries, ignoreTemporary, ignoreExpired bool) *Lock {
	l := m.locks[owner][e.key()]
	if l == nil && !ignoreTemporary {
		l = m.temporary[owner][e.key()]
	}
	if l == nil {
		return nil
	}
	if ignoreExpired && l.IsExpired(m.now()) && !l.Extended {
		return nil
	}
	return l
}

// CreateInstanceLockForNewInstance creates a temporary lock for owner on a fresh instance.
// Returns nil for difficulties without a reset schedule.
func (m *Manager) CreateInstanceLockForNewInstance(owner model.GUID, e Entries, instanceID uint32) *Lock {
	if !e.HasResetSchedule() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l := &Lock{
		Owner:      owner,
		MapID:      e.MapID,
		Difficulty: e.Difficulty,
		InstanceID: instanceID,
		Expiry:     m.nextResetTime(e),
	}
	if e.InstanceIDBound {
		d, ok := m.shared[instanceID]
		if !ok {
			d = &LockData{}
			m.shared[instanceID] = d
		}
		l.Data = d
		l.Shared = true
	} else {
		l.Data = &LockData{}
	}
	m.put(m.temporary, l)

	slog.Debug("temporary instance lock created",
		"owner", owner,
		"map", e.MapID,
		"difficulty", e.Difficulty,
		"instance", instanceID)
	return l
}

// CanJoinInstanceLock checks whether owner's own lock allows joining an instance bound to lock.
func (m *Manager) CanJoinInstanceLock(owner model.GUID, e Entries, lock *Lock) TransferAbort {
	if !e.HasResetSchedule() || lock == nil {
		return AbortNone
	}
	own := m.FindActiveInstanceLock(owner, e)
	if own == nil {
		return AbortNone
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if e.FlexLocking {
		if own.Data.CompletedEncountersMask&^lock.Data.CompletedEncountersMask != 0 {
			return AbortAlreadyCompletedEncounter
		}
		return AbortNone
	}
	if !e.UsesEncounterLocks && own.InstanceID != 0 && own.InstanceID != lock.InstanceID {
		return AbortLockedToDifferentInstance
	}
	return AbortNone
}

// UpdateSharedInstanceLock applies ev to the shared data of an instance-id-bound instance.
// It must run before any dependent UpdateInstanceLockForPlayer in the same transaction.
func (m *Manager) UpdateSharedInstanceLock(ctx context.Context, tx Tx, ev UpdateEvent) error {
	m.mu.Lock()
	d, ok := m.shared[ev.InstanceID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("update shared lock %d: %w", ev.InstanceID, ErrSharedDataMissing)
	}
	d.Data = ev.NewData
	if ev.EncounterBit >= 0 {
		d.CompletedEncountersMask |= 1 << uint(ev.EncounterBit)
	}
	if ev.EntranceLocID != 0 {
		d.EntranceLocID = ev.EntranceLocID
	}
	row := SharedRow{InstanceID: ev.InstanceID, LockData: *d}
	m.mu.Unlock()

	if err := tx.SaveSharedData(ctx, row); err != nil {
		return fmt.Errorf("save shared lock %d: %w", ev.InstanceID, err)
	}
	return nil
}

// UpdateInstanceLockForPlayer promotes or creates owner's permanent lock and applies ev.
func (m *Manager) UpdateInstanceLockForPlayer(ctx context.Context, tx Tx, owner model.GUID, e Entries, ev UpdateEvent) (*Lock, error) {
	m.mu.Lock()
	l := m.findLocked(owner, e, true, true)
	if l == nil {
		key := e.key()
		if tmp, ok := m.temporary[owner][key]; ok {
			delete(m.temporary[owner], key)
			if len(m.temporary[owner]) == 0 {
				delete(m.temporary, owner)
			}
			l = tmp
		} else if stale := m.locks[owner][key]; stale != nil {
			// Expired permanent lock: start over on the new instance.
			l = stale
			l.Expiry = m.nextResetTime(e)
			l.Extended = false
			l.Data = &LockData{}
			l.Shared = false
		} else {
			l = &Lock{
				Owner:      owner,
				MapID:      e.MapID,
				Difficulty: e.Difficulty,
				Expiry:     m.nextResetTime(e),
				Data:       &LockData{},
			}
		}
		m.put(m.locks, l)
	}

	if e.InstanceIDBound {
		d, ok := m.shared[ev.InstanceID]
		if !ok {
			m.mu.Unlock()
			return nil, fmt.Errorf("update lock for %s: %w", owner, ErrSharedDataMissing)
		}
		if l.Shared && l.Data != d && l.InstanceID == ev.InstanceID {
			m.mu.Unlock()
			return nil, fmt.Errorf("update lock for %s: %w", owner, ErrSharedMismatch)
		}
		l.Data = d
		l.Shared = true
	} else {
		if l.InstanceID != ev.InstanceID {
			l.Data = &LockData{}
		}
		l.Data.Data = ev.NewData
		if ev.EncounterBit >= 0 {
			l.Data.CompletedEncountersMask |= 1 << uint(ev.EncounterBit)
		}
		if ev.EntranceLocID != 0 {
			l.Data.EntranceLocID = ev.EntranceLocID
		}
	}
	l.InstanceID = ev.InstanceID

	if l.IsExpired(m.now()) {
		l.Expiry = m.nextResetTime(e)
		l.Extended = false
	}
	row := rowOf(l)
	m.mu.Unlock()

	if err := tx.SaveLock(ctx, row); err != nil {
		return l, fmt.Errorf("save lock for %s: %w", owner, err)
	}
	slog.Debug("instance lock updated",
		"owner", owner,
		"map", e.MapID,
		"instance", ev.InstanceID,
		"completed", row.CompletedEncountersMask)
	return l, nil
}

func rowOf(l *Lock) LockRow {
	return LockRow{
		Owner:      uint64(l.Owner),
		MapID:      l.MapID,
		Difficulty: l.Difficulty,
		InstanceID: l.InstanceID,
		LockData:   *l.Data,
		Expiry:     l.Expiry,
		Extended:   l.Extended,
	}
}

// Commit runs fn inside one store transaction.
func (m *Manager) Commit(ctx context.Context, fn func(Tx) error) error {
	if m.store == nil {
		return ErrNoStore
	}
	return m.store.WithTx(ctx, fn)
}

// SetExtended toggles extension of owner's lock.
func (m *Manager) SetExtended(ctx context.Context, owner model.GUID, e Entries, extended bool) error {
	m.mu.Lock()
	l := m.locks[owner][e.key()]
	if l == nil {
		m.mu.Unlock()
		return ErrLockNotFound
	}
	l.Extended = extended
	row := rowOf(l)
	m.mu.Unlock()

	return m.Commit(ctx, func(tx Tx) error { return tx.SaveLock(ctx, row) })
}

// NextResetTime returns the next reset boundary for entries.
func (m *Manager) NextResetTime(e Entries) time.Time {
	return m.nextResetTime(e)
}

func (m *Manager) nextResetTime(e Entries) time.Time {
	if !e.HasResetSchedule() {
		return time.Time{}
	}
	origin := time.Unix(0, 0).UTC().Add(m.resetOffset)
	elapsed := m.now().Sub(origin)
	periods := elapsed/e.ResetInterval + 1
	return origin.Add(periods * e.ResetInterval)
}

// OnInstanceDestroyed drops temporary locks on instanceID and its shared data
// if no permanent lock references it.
func (m *Manager) OnInstanceDestroyed(ctx context.Context, instanceID uint32) error {
	m.mu.Lock()
	for owner, byKey := range m.temporary {
		for k, l := range byKey {
			if l.InstanceID == instanceID {
				delete(byKey, k)
			}
		}
		if len(byKey) == 0 {
			delete(m.temporary, owner)
		}
	}
	_, hasShared := m.shared[instanceID]
	referenced := m.referencedLocked(instanceID)
	if hasShared && !referenced {
		delete(m.shared, instanceID)
	}
	m.mu.Unlock()

	if !hasShared || referenced || m.store == nil {
		return nil
	}
	return m.Commit(ctx, func(tx Tx) error { return tx.DeleteSharedData(ctx, instanceID) })
}

func (m *Manager) referencedLocked(instanceID uint32) bool {
	for _, byKey := range m.locks {
		for _, l := range byKey {
			if l.InstanceID == instanceID && !l.IsExpired(m.now()) {
				return true
			}
		}
	}
	return false
}

// IsReferenced reports whether any unexpired permanent lock points at instanceID.
func (m *Manager) IsReferenced(instanceID uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.referencedLocked(instanceID)
}

// InstanceIDs returns every instance id referenced by a permanent lock, ascending.
func (m *Manager) InstanceIDs() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[uint32]struct{})
	out := make([]uint32, 0, len(m.locks))
	for _, byKey := range m.locks {
		for _, l := range byKey {
			if _, ok := seen[l.InstanceID]; ok || l.InstanceID == 0 {
				continue
			}
			seen[l.InstanceID] = struct{}{}
			out = append(out, l.InstanceID)
		}
	}
	slices.Sort(out)
	return out
}

// MaxInstanceID returns the highest instance id referenced by any lock or shared record.
func (m *Manager) MaxInstanceID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var highest uint32
	for id := range m.shared {
		highest = max(highest, id)
	}
	for _, byKey := range m.locks {
		for _, l := range byKey {
			highest = max(highest, l.InstanceID)
		}
	}
	return highest
}

// LockCount returns the number of permanent locks.
func (m *Manager) LockCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, byKey := range m.locks {
		n += len(byKey)
	}
	return n
}

// SetLockInstanceID moves lock onto another instance, used when its instance id
// is already taken by a map bound to a different lock.
func (m *Manager) SetLockInstanceID(l *Lock, instanceID uint32) {
	m.mu.Lock()
	l.InstanceID = instanceID
	m.mu.Unlock()
	slog.Debug("instance lock reassigned", "owner", l.Owner, "map", l.MapID, "instance", instanceID)
}
