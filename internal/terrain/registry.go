package terrain

import (
	"log/slog"
	"sync"
	"time"
)

// Config controls terrain loading.
type Config struct {
	DataDir         string
	EnableMMaps     bool
	CleanupInterval time.Duration
}

type entry struct {
	terrain *Map
	users   int
}

// Registry hands out shared terrain per map id.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	terrains map[uint32]*entry
}

// NewRegistry creates a terrain registry reading files under cfg.DataDir.
func NewRegistry(cfg Config) *Registry {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return &Registry{
		cfg:      cfg,
		terrains: make(map[uint32]*entry),
	}
}

// Load returns the terrain of mapID, creating it on first use. A child map's terrain
// is attached to its parent so both load grids together. Pass NoParent for root maps.
func (r *Registry) Load(mapID uint32, parentID int32) *Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(mapID, parentID)
}

func (r *Registry) loadLocked(mapID uint32, parentID int32) *Map {
	if e, ok := r.terrains[mapID]; ok {
		e.users++
		return e.terrain
	}

	t := newMap(mapID, r.cfg.DataDir, r.cfg.EnableMMaps, r.cfg.CleanupInterval)
	if parentID >= 0 && uint32(parentID) != mapID {
		parent := r.loadLocked(uint32(parentID), NoParent)
		parent.loadMu.Lock()
		parent.children = append(parent.children, t)
		parent.loadMu.Unlock()
		t.parent = parent
	}
	r.terrains[mapID] = &entry{terrain: t, users: 1}
	slog.Debug("terrain created", "map", mapID, "parent", parentID)
	return t
}

// Release drops one user of t. The last release frees its data and detaches it from its parent.
func (r *Registry) Release(t *Map) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(t)
}

func (r *Registry) releaseLocked(t *Map) {
	e, ok := r.terrains[t.mapID]
	if !ok || e.terrain != t {
		return
	}
	e.users--
	if e.users > 0 {
		return
	}

	delete(r.terrains, t.mapID)
	t.unloadAll()
	if p := t.parent; p != nil {
		p.loadMu.Lock()
		for i, c := range p.children {
			if c == t {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
		p.loadMu.Unlock()
		r.releaseLocked(p)
	}
	slog.Debug("terrain released", "map", t.mapID)
}

// Get returns a live terrain without taking a reference.
func (r *Registry) Get(mapID uint32) (*Map, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.terrains[mapID]
	if !ok {
		return nil, false
	}
	return e.terrain, true
}

// Update advances the cleanup sweep of every terrain.
func (r *Registry) Update(diff time.Duration) {
	r.mu.Lock()
	list := make([]*Map, 0, len(r.terrains))
	for _, e := range r.terrains {
		list = append(list, e.terrain)
	}
	r.mu.Unlock()

	for _, t := range list {
		t.CleanUpGrids(diff)
	}
}

// UnloadAll frees every terrain.
func (r *Registry) UnloadAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.terrains {
		e.terrain.unloadAll()
		delete(r.terrains, id)
	}
}

// Count returns the number of live terrains.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.terrains)
}
