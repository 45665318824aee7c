package spawn

import (
	"log/slog"
	"math/rand/v2"
	"sync"
)

// PoolHost materializes a pooled spawn on a map.
type PoolHost interface {
	SpawnPooled(t Type, spawnID uint64) bool
}

// Pools hands respawns of pooled spawns to another member of the pool.
type Pools struct {
	pools    map[uint32]*Pool
	byMember map[Key]uint32
	byMap    map[uint32][]uint32

	pick func(n int) int
}

// NewPools indexes pool definitions. Members listed in more than one pool keep the first.
func NewPools(defs []Pool) *Pools {
	p := &Pools{
		pools:    make(map[uint32]*Pool, len(defs)),
		byMember: make(map[Key]uint32, len(defs)*4),
		byMap:    make(map[uint32][]uint32, 8),
		pick:     rand.IntN,
	}
	for i := range defs {
		def := defs[i]
		if def.ID == 0 || len(def.Members) == 0 {
			continue
		}
		if def.MaxLimit <= 0 || def.MaxLimit > len(def.Members) {
			def.MaxLimit = len(def.Members)
		}
		p.pools[def.ID] = &def
		p.byMap[def.MapID] = append(p.byMap[def.MapID], def.ID)
		for _, m := range def.Members {
			if owner, dup := p.byMember[m]; dup {
				slog.Warn("spawn listed in several pools", "spawnID", m.SpawnID, "pool", owner, "ignored", def.ID)
				continue
			}
			p.byMember[m] = def.ID
		}
	}
	return p
}

// PoolOf returns the pool the spawn belongs to, or 0.
func (p *Pools) PoolOf(t Type, spawnID uint64) uint32 {
	if p == nil {
		return 0
	}
	return p.byMember[Key{Type: t, SpawnID: spawnID}]
}

// NewState picks the initially spawned members of every pool on a map.
func (p *Pools) NewState(mapID uint32) *PoolState {
	st := &PoolState{spawned: make(map[Key]struct{})}
	if p == nil {
		return st
	}
	for _, id := range p.byMap[mapID] {
		pool := p.pools[id]
		order := make([]Key, len(pool.Members))
		copy(order, pool.Members)
		for i := len(order) - 1; i > 0; i-- {
			j := p.pick(i + 1)
			order[i], order[j] = order[j], order[i]
		}
		for _, k := range order[:pool.MaxLimit] {
			st.spawned[k] = struct{}{}
		}
	}
	return st
}

// UpdatePool replaces a despawned member with another one of the same pool.
// The chosen member is marked spawned even if the host cannot materialize it yet;
// grid loading picks it up later.
func (p *Pools) UpdatePool(st *PoolState, host PoolHost, poolID uint32, t Type, spawnID uint64) {
	pool, ok := p.pools[poolID]
	if !ok {
		slog.Warn("update of unknown pool", "pool", poolID)
		return
	}

	freed := Key{Type: t, SpawnID: spawnID}
	st.remove(freed)

	candidates := make([]Key, 0, len(pool.Members))
	for _, m := range pool.Members {
		if m != freed && !st.IsSpawnedObject(m.Type, m.SpawnID) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		candidates = append(candidates, freed)
	}

	next := candidates[p.pick(len(candidates))]
	st.add(next)
	if !host.SpawnPooled(next.Type, next.SpawnID) {
		slog.Debug("pooled spawn deferred to grid load", "pool", poolID, "spawnID", next.SpawnID)
	}
}

// PoolState tracks which pooled spawns are live on one map.
type PoolState struct {
	mu      sync.RWMutex
	spawned map[Key]struct{}
}

// IsSpawnedObject reports whether a pooled spawn is currently chosen on the map.
func (s *PoolState) IsSpawnedObject(t Type, spawnID uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spawned[Key{Type: t, SpawnID: spawnID}]
	return ok
}

func (s *PoolState) add(k Key) {
	s.mu.Lock()
	s.spawned[k] = struct{}{}
	s.mu.Unlock()
}

func (s *PoolState) remove(k Key) {
	s.mu.Lock()
	delete(s.spawned, k)
	s.mu.Unlock()
}

// Count returns the number of chosen members.
func (s *PoolState) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spawned)
}
