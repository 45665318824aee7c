package world

import (
	"slices"
	"sync"
	"time"

	"github.com/udisondev/worldcore/internal/model"
)

// spatialRebalancePeriod is how often the dynamic object index is re-sorted.
const spatialRebalancePeriod = 200 * time.Millisecond

type spatialEntry struct {
	guid model.GUID
	pos  model.Position
}

// spatialIndex keeps game objects ordered by X for range queries that must
// not touch the grid containers (line of sight, collision).
type spatialIndex struct {
	mu      sync.Mutex
	entries []spatialEntry
	at      map[model.GUID]int
	sorted  bool
	elapsed time.Duration
}

func (s *spatialIndex) init() {
	s.at = make(map[model.GUID]int, 64)
	s.sorted = true
}

func indexed(o *Object) bool { return o.Type() == model.TypeGameObject }

func (s *spatialIndex) insert(o *Object) {
	if !indexed(o) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.at[o.guid]; ok {
		return
	}
	s.at[o.guid] = len(s.entries)
	s.entries = append(s.entries, spatialEntry{guid: o.guid, pos: o.Position()})
	s.sorted = false
}

func (s *spatialIndex) remove(guid model.GUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.at[guid]
	if !ok {
		return
	}
	last := len(s.entries) - 1
	s.entries[i] = s.entries[last]
	s.at[s.entries[i].guid] = i
	s.entries = s.entries[:last]
	delete(s.at, guid)
	s.sorted = false
}

func (s *spatialIndex) update(o *Object) {
	if !indexed(o) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.at[o.guid]
	if !ok {
		return
	}
	s.entries[i].pos = o.Position()
	s.sorted = false
}

// balance re-sorts the index if anything changed.
func (s *spatialIndex) balance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortLocked()
}

func (s *spatialIndex) sortLocked() {
	if s.sorted {
		return
	}
	slices.SortFunc(s.entries, func(a, b spatialEntry) int {
		switch {
		case a.pos.X < b.pos.X:
			return -1
		case a.pos.X > b.pos.X:
			return 1
		}
		return compareGUID(a.guid, b.guid)
	})
	for i, e := range s.entries {
		s.at[e.guid] = i
	}
	s.sorted = true
}

func (s *spatialIndex) tick(diff time.Duration) {
	s.elapsed += diff
	if s.elapsed < spatialRebalancePeriod {
		return
	}
	s.elapsed = 0
	s.balance()
}

func (s *spatialIndex) query(pos model.Position, radius float32) []model.GUID {
	// sort and search under one lock
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortLocked()
	r2 := float64(radius) * float64(radius)
	start, _ := slices.BinarySearchFunc(s.entries, pos.X-radius, func(e spatialEntry, x float32) int {
		switch {
		case e.pos.X < x:
			return -1
		case e.pos.X > x:
			return 1
		}
		return 0
	})
	var out []model.GUID
	for _, e := range s.entries[start:] {
		if e.pos.X > pos.X+radius {
			break
		}
		if e.pos.Distance2DSquared(pos) <= r2 {
			out = append(out, e.guid)
		}
	}
	slices.Sort(out)
	return out
}

// GameObjectsInRange returns game objects within radius of pos, ordered by guid.
func (m *Map) GameObjectsInRange(pos model.Position, radius float32) []model.GUID {
	return m.spatial.query(pos, radius)
}
