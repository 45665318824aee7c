package world

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

// respawnNever marks a linked spawn whose master will not come back.
var respawnNever = time.Unix(1<<40, 0)

const linkedSelfDelay = 7 * 24 * time.Hour

// RespawnInfo is one pending respawn.
type RespawnInfo struct {
	Type        spawn.Type
	SpawnID     uint64
	Entry       uint32
	RespawnTime time.Time
	GridID      uint32

	index int
}

func (r *RespawnInfo) before(o *RespawnInfo) bool {
	if !r.RespawnTime.Equal(o.RespawnTime) {
		return r.RespawnTime.Before(o.RespawnTime)
	}
	if r.Type != o.Type {
		return r.Type < o.Type
	}
	return r.SpawnID < o.SpawnID
}

type respawnHeap []*RespawnInfo

func (h respawnHeap) Len() int           { return len(h) }
func (h respawnHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h respawnHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *respawnHeap) Push(x any) {
	r := x.(*RespawnInfo)
	r.index = len(*h)
	*h = append(*h, r)
}

func (h *respawnHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*h = old[:n-1]
	return r
}

// respawnSchedule orders respawns by (time, type, spawn id) and indexes them by spawn id.
type respawnSchedule struct {
	mu     sync.Mutex
	heap   respawnHeap
	byType [spawn.NumTypes]map[uint64]*RespawnInfo
}

func (s *respawnSchedule) init() {
	for t := range spawn.NumTypes {
		s.byType[t] = make(map[uint64]*RespawnInfo, 64)
	}
}

func (s *respawnSchedule) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

func (s *respawnSchedule) get(t spawn.Type, id uint64) *RespawnInfo {
	if !t.IsValid() {
		return nil
	}
	return s.byType[t][id]
}

// add inserts info unless an entry due no later already exists.
// It reports whether info was inserted and whether an existing entry was replaced.
func (s *respawnSchedule) add(info *RespawnInfo) (inserted, replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.byType[info.Type][info.SpawnID]; existing != nil {
		if info.RespawnTime.After(existing.RespawnTime) {
			return false, false
		}
		s.deleteLocked(existing)
		replaced = true
	}
	heap.Push(&s.heap, info)
	s.byType[info.Type][info.SpawnID] = info
	return true, replaced
}

func (s *respawnSchedule) deleteLocked(info *RespawnInfo) {
	if info.index >= 0 && info.index < len(s.heap) && s.heap[info.index] == info {
		heap.Remove(&s.heap, info.index)
	}
	delete(s.byType[info.Type], info.SpawnID)
}

func (s *respawnSchedule) remove(t spawn.Type, id uint64) bool {
	if !t.IsValid() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.byType[t][id]
	if info == nil {
		return false
	}
	s.deleteLocked(info)
	return true
}

// removeEntry deletes info only if it is still the scheduled entry of its spawn.
func (s *respawnSchedule) removeEntry(info *RespawnInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byType[info.Type][info.SpawnID] != info {
		return false
	}
	s.deleteLocked(info)
	return true
}

func (s *respawnSchedule) reschedule(info *RespawnInfo, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byType[info.Type][info.SpawnID] != info {
		return false
	}
	info.RespawnTime = at
	heap.Fix(&s.heap, info.index)
	return true
}

func (s *respawnSchedule) peek() (*RespawnInfo, RespawnInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return nil, RespawnInfo{}
	}
	return s.heap[0], *s.heap[0]
}

func (s *respawnSchedule) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.heap)
	s.heap = nil
	for t := range s.byType {
		clear(s.byType[t])
	}
	return n
}

func (s *respawnSchedule) snapshot() []RespawnInfo {
	s.mu.Lock()
	out := make([]RespawnInfo, 0, len(s.heap))
	for _, r := range s.heap {
		out = append(out, *r)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b RespawnInfo) int {
		switch {
		case a.before(&b):
			return -1
		case b.before(&a):
			return 1
		}
		return 0
	})
	return out
}

func (m *Map) loadRespawnTimes(ctx context.Context) error {
	if !m.persistRespawns || m.respawnDB == nil {
		return nil
	}
	recs, err := m.respawnDB.LoadRespawns(ctx, m.ID(), m.instanceID)
	if err != nil {
		return fmt.Errorf("loading respawn times: %w", err)
	}
	for _, rec := range recs {
		d := m.spawns.Data(rec.Type, rec.SpawnID)
		if d == nil || d.MapID != m.ID() {
			slog.Warn("respawn row for unknown spawn deleted",
				"map", m.ID(),
				"instance", m.instanceID,
				"type", rec.Type,
				"spawnID", rec.SpawnID)
			m.respawnDB.DeleteRespawn(rec.Type, rec.SpawnID, m.ID(), m.instanceID)
			continue
		}
		m.SaveRespawnTime(rec.Type, rec.SpawnID, d.Entry, rec.Due(), d.GridID(), true)
	}
	return nil
}

// SaveRespawnTime schedules a respawn. A zero time deletes the schedule.
// An existing entry is replaced only by one due no later than it.
// startup marks entries read back from storage, which are not written again.
func (m *Map) SaveRespawnTime(t spawn.Type, spawnID uint64, entry uint32, at time.Time, gridID uint32, startup bool) bool {
	if spawnID == 0 {
		slog.Warn("respawn for zero spawn id ignored", "map", m.ID(), "type", t)
		return false
	}
	md := m.spawns.Metadata(t, spawnID)
	if md == nil {
		slog.Error("respawn for nonexistent spawn", "map", m.ID(), "type", t, "spawnID", spawnID)
		return false
	}
	if at.IsZero() {
		m.RemoveRespawnTime(t, spawnID, false)
		return true
	}
	if !t.HasRespawn() {
		slog.Error("respawn for spawn type without respawn", "map", m.ID(), "type", t, "spawnID", spawnID)
		return false
	}

	info := &RespawnInfo{Type: t, SpawnID: spawnID, Entry: entry, RespawnTime: at, GridID: gridID}
	inserted, replaced := m.respawns.add(info)
	if !inserted {
		if startup {
			slog.Error("duplicate saved respawn skipped", "map", m.ID(), "type", t, "spawnID", spawnID)
		} else {
			slog.Debug("respawn not rescheduled later", "map", m.ID(), "type", t, "spawnID", spawnID)
		}
		return false
	}
	if !replaced {
		m.metrics.RespawnsPending(1)
	}
	if !startup {
		m.saveRespawnDB(info)
	}
	return true
}

func (m *Map) saveRespawnDB(info *RespawnInfo) {
	if !m.persistRespawns || m.respawnDB == nil {
		return
	}
	if m.pools.PoolOf(info.Type, info.SpawnID) != 0 {
		return
	}
	m.respawnDB.SaveRespawn(spawn.RespawnRecord{
		Type:        info.Type,
		SpawnID:     info.SpawnID,
		RespawnTime: info.RespawnTime.Unix(),
		MapID:       m.ID(),
		InstanceID:  m.instanceID,
	})
}

func (m *Map) deleteRespawnDB(t spawn.Type, spawnID uint64) {
	if !m.persistRespawns || m.respawnDB == nil {
		return
	}
	m.respawnDB.DeleteRespawn(t, spawnID, m.ID(), m.instanceID)
}

// RemoveRespawnTime drops a pending respawn. With alwaysDeleteFromDB the stored
// row is deleted even when nothing was scheduled in memory.
func (m *Map) RemoveRespawnTime(t spawn.Type, spawnID uint64, alwaysDeleteFromDB bool) {
	if m.respawns.remove(t, spawnID) {
		m.metrics.RespawnsPending(-1)
		m.deleteRespawnDB(t, spawnID)
		return
	}
	if alwaysDeleteFromDB {
		m.deleteRespawnDB(t, spawnID)
	}
}

// GetRespawnTime returns the scheduled respawn of a spawn, zero when none.
func (m *Map) GetRespawnTime(t spawn.Type, spawnID uint64) time.Time {
	m.respawns.mu.Lock()
	defer m.respawns.mu.Unlock()
	if info := m.respawns.get(t, spawnID); info != nil {
		return info.RespawnTime
	}
	return time.Time{}
}

// RespawnInfo returns a copy of the pending respawn of a spawn.
func (m *Map) RespawnInfo(t spawn.Type, spawnID uint64) (RespawnInfo, bool) {
	m.respawns.mu.Lock()
	defer m.respawns.mu.Unlock()
	if info := m.respawns.get(t, spawnID); info != nil {
		return *info, true
	}
	return RespawnInfo{}, false
}

// RespawnInfos returns every pending respawn in due order.
func (m *Map) RespawnInfos() []RespawnInfo { return m.respawns.snapshot() }

// RespawnCount returns the number of pending respawns.
func (m *Map) RespawnCount() int { return m.respawns.len() }

// DeleteRespawnTimes drops every pending respawn in memory and storage.
func (m *Map) DeleteRespawnTimes() {
	n := m.respawns.clear()
	m.metrics.RespawnsPending(-n)
	if m.persistRespawns && m.respawnDB != nil {
		m.respawnDB.DeleteInstanceRespawns(m.ID(), m.instanceID)
	}
}

// LinkedRespawnTime returns the respawn time of the spawn k is linked to, zero when none.
func (m *Map) LinkedRespawnTime(k spawn.Key) time.Time {
	master, ok := m.spawns.LinkedRespawn(k)
	if !ok {
		return time.Time{}
	}
	return m.GetRespawnTime(master.Type, master.SpawnID)
}

// ProcessRespawns materializes every due respawn, front to back.
func (m *Map) ProcessRespawns() int {
	now := m.now()
	processed := 0
	for {
		entry, info := m.respawns.peek()
		if entry == nil || now.Before(info.RespawnTime) {
			return processed
		}

		if poolID := m.pools.PoolOf(info.Type, info.SpawnID); poolID != 0 {
			if !m.respawns.removeEntry(entry) {
				continue
			}
			m.metrics.RespawnsPending(-1)
			m.pools.UpdatePool(m.poolState, m, poolID, info.Type, info.SpawnID)
			m.RemoveRespawnTime(info.Type, info.SpawnID, true)
			processed++
			continue
		}

		if m.CheckRespawn(&info) {
			if !m.respawns.removeEntry(entry) {
				continue
			}
			m.metrics.RespawnsPending(-1)
			m.DoRespawn(info.Type, info.SpawnID, info.GridID)
			m.RemoveRespawnTime(info.Type, info.SpawnID, true)
			m.metrics.RespawnProcessed()
			processed++
			continue
		}

		if info.RespawnTime.IsZero() {
			if m.respawns.removeEntry(entry) {
				m.metrics.RespawnsPending(-1)
				m.RemoveRespawnTime(info.Type, info.SpawnID, true)
			}
			continue
		}

		if !now.Before(info.RespawnTime) {
			slog.Error("respawn rescheduled into the past", "map", m.ID(), "type", info.Type, "spawnID", info.SpawnID)
			info.RespawnTime = now.Add(time.Second)
		}
		if m.respawns.reschedule(entry, info.RespawnTime) {
			m.saveRespawnDB(&info)
		}
	}
}

// CheckRespawn reports whether info may respawn now. When it may not, info.RespawnTime
// is set to the next check time, or zero if the entry should be dropped.
func (m *Map) CheckRespawn(info *RespawnInfo) bool {
	d := m.spawns.Data(info.Type, info.SpawnID)
	if d == nil {
		slog.Error("respawn check for nonexistent spawn", "map", m.ID(), "type", info.Type, "spawnID", info.SpawnID)
		info.RespawnTime = time.Time{}
		return false
	}

	if !m.IsSpawnGroupActive(d.Group.ID) {
		info.RespawnTime = time.Time{}
		return false
	}

	if m.hasBlockingInstance(d) {
		info.RespawnTime = time.Time{}
		return false
	}

	key := spawn.Key{Type: info.Type, SpawnID: info.SpawnID}
	if linked := m.LinkedRespawnTime(key); !linked.IsZero() {
		now := m.now()
		master, _ := m.spawns.LinkedRespawn(key)
		switch {
		case linked.Equal(respawnNever):
			info.RespawnTime = linked
		case master == key:
			info.RespawnTime = now.Add(linkedSelfDelay)
		default:
			base := linked
			if now.After(base) {
				base = now
			}
			info.RespawnTime = base.Add(time.Duration(5+rand.IntN(11)) * time.Second)
		}
		return false
	}
	return true
}

// hasBlockingInstance reports whether a live copy of the spawn prevents its respawn.
// Personal copies are checked per owner when they respawn.
func (m *Map) hasBlockingInstance(d *spawn.Data) bool {
	if d.PersonalPhase != 0 {
		return false
	}
	objs := m.ObjectsBySpawnID(d.Type, d.SpawnID)
	switch d.Type {
	case spawn.TypeCreature:
		escort := m.cfg.DynamicEscortRespawn && d.Group.Has(spawn.GroupFlagEscortQuestNpc)
		for _, o := range objs {
			if !o.IsAlive() {
				continue
			}
			if escort && o.IsEscorted() {
				continue
			}
			return true
		}
		return false
	default:
		return len(objs) > 0
	}
}

// DoRespawn spawns the object if its grid is loaded; otherwise the grid loader will.
func (m *Map) DoRespawn(t spawn.Type, spawnID uint64, gridID uint32) {
	if !m.IsGridLoaded(cell.GridCoordFromID(gridID)) {
		return
	}
	d := m.spawns.Data(t, spawnID)
	if d == nil {
		return
	}
	if d.PersonalPhase != 0 {
		m.respawnPersonal(d, gridID)
		return
	}
	if _, err := m.spawnObject(d); err != nil {
		slog.Error("respawn failed", "map", m.ID(), "type", t, "spawnID", spawnID, "error", err)
	}
}

// ShouldBeSpawnedOnGridLoad reports whether the grid loader should create a spawn.
func (m *Map) ShouldBeSpawnedOnGridLoad(t spawn.Type, spawnID uint64) bool {
	d := m.spawns.Data(t, spawnID)
	if d == nil {
		return false
	}
	if !m.GetRespawnTime(t, spawnID).IsZero() {
		return false
	}
	if !d.Group.Has(spawn.GroupFlagSystem) && !m.IsSpawnGroupActive(d.Group.ID) {
		return false
	}
	if m.pools.PoolOf(t, spawnID) != 0 && !m.poolState.IsSpawnedObject(t, spawnID) {
		return false
	}
	return true
}

// SpawnPooled spawns a pool member chosen by the pool manager.
func (m *Map) SpawnPooled(t spawn.Type, spawnID uint64) bool {
	d := m.spawns.Data(t, spawnID)
	if d == nil || !m.IsGridLoaded(cell.GridCoordFromID(d.GridID())) {
		return false
	}
	if m.hasBlockingInstance(d) {
		return true
	}
	_, err := m.spawnObject(d)
	return err == nil
}

// spawnObject creates a live object for spawn d and attaches it.
func (m *Map) spawnObject(d *spawn.Data) (*Object, error) {
	o := newSpawnObject(m.guids.Next(d.Type.ObjectType()), d)
	if err := m.AddToMap(o); err != nil {
		return nil, err
	}
	return o, nil
}

// Despawn removes a spawned object at the next DelayedUpdate, scheduling its
// respawn after the spawn's delay when scheduleRespawn is set.
func (m *Map) Despawn(guid model.GUID, scheduleRespawn bool) error {
	o := m.Object(guid)
	if o == nil {
		return fmt.Errorf("despawn %s: %w", guid, ErrNotInMap)
	}
	o.SetAlive(false)
	if scheduleRespawn && o.isSpawned() {
		d := m.spawns.Data(o.spawnType, o.spawnID)
		if d == nil {
			return fmt.Errorf("despawn %s: %w", guid, ErrSpawnDataMissing)
		}
		m.SaveRespawnTime(d.Type, d.SpawnID, d.Entry, m.now().Add(d.RespawnDelay), d.GridID(), false)
	}
	m.AddObjectToRemoveList(guid)
	return nil
}
