// Package mapmgr owns every live map: it creates and finds maps by
// (map id, instance id), allocates instance ids and drives the map ticks.
package mapmgr

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/worldcore/internal/instance"
	"github.com/udisondev/worldcore/internal/metrics"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
	"github.com/udisondev/worldcore/internal/terrain"
	"github.com/udisondev/worldcore/internal/tick"
	"github.com/udisondev/worldcore/internal/transport"
	"github.com/udisondev/worldcore/internal/world"
)

// EntryStore resolves static map entries.
type EntryStore interface {
	MapEntry(id uint32) (*world.Entry, bool)
}

// Config is the tuning of the manager loop.
type Config struct {
	UpdateInterval time.Duration
	// UpdateThreads bounds how many maps tick in parallel.
	UpdateThreads int
	MaxInstanceID uint32
	Map           world.Config
}

// DefaultConfig returns manager settings with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UpdateInterval: 100 * time.Millisecond,
		UpdateThreads:  4,
		MaxInstanceID:  1 << 24,
		Map:            world.DefaultConfig(),
	}
}

// Deps are the services shared by every map.
type Deps struct {
	Entries         EntryStore
	Spawns          *spawn.Store
	Pools           *spawn.Pools
	Terrain         *terrain.Registry
	Respawns        world.RespawnStore
	Locks           *instance.Manager
	Scripts         world.ScriptFactory
	Transports      *transport.Registry
	Visibility      world.VisibilitySink
	Updates         world.UpdateSink
	Conditions      world.ConditionEvaluator
	EntryPoints     world.EntryPointSender
	TransportEvents world.TransportEventSink
	Metrics         *metrics.Metrics

	// Shutdown is called once when the instance id space runs out.
	Shutdown func(error)
	Now      func() time.Time
}

type mapKey struct {
	mapID      uint32
	instanceID uint32
}

func compareKeys(a, b mapKey) int {
	if c := cmp.Compare(a.mapID, b.mapID); c != 0 {
		return c
	}
	return cmp.Compare(a.instanceID, b.instanceID)
}

// Manager is the registry of live maps.
type Manager struct {
	deps Deps
	cfg  Config

	mu   sync.RWMutex
	maps map[mapKey]*world.Map

	ids            *idPool
	transportGUIDs *model.GUIDGenerator
	timer          tick.Interval
	shutdownOnce   sync.Once
}

// New creates a map manager. Instance ids must be initialized before the first instance is created.
func New(deps Deps, cfg Config) *Manager {
	if cfg.UpdateThreads <= 0 {
		cfg.UpdateThreads = 1
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultConfig().UpdateInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Manager{
		deps:           deps,
		cfg:            cfg,
		maps:           make(map[mapKey]*world.Map, 16),
		ids:            newIDPool(cfg.MaxInstanceID),
		transportGUIDs: model.NewGUIDGenerator(),
		timer:          tick.NewInterval(cfg.UpdateInterval),
	}
}

// InitInstanceIDs sizes the id pool for ids up to maxExisting; register
// persisted ids with RegisterInstanceID afterwards.
func (m *Manager) InitInstanceIDs(maxExisting uint32) {
	m.ids.mu.Lock()
	m.ids.reset(maxExisting)
	m.ids.mu.Unlock()
	m.deps.Metrics.InstanceIDsInUse(0)
}

// RegisterInstanceID marks a persisted instance id as taken.
func (m *Manager) RegisterInstanceID(id uint32) {
	m.ids.register(id)
	m.deps.Metrics.InstanceIDsInUse(m.ids.count())
}

// GenerateInstanceID returns the smallest free instance id. Running out of ids
// is fatal: the shutdown hook is invoked and ErrInstanceIDExhausted returned.
func (m *Manager) GenerateInstanceID() (uint32, error) {
	id, ok := m.ids.generate()
	if !ok {
		slog.Error("instance id space exhausted", "max", m.cfg.MaxInstanceID)
		m.shutdownOnce.Do(func() {
			if m.deps.Shutdown != nil {
				m.deps.Shutdown(ErrInstanceIDExhausted)
			}
		})
		return 0, ErrInstanceIDExhausted
	}
	m.deps.Metrics.InstanceIDsInUse(m.ids.count())
	return id, nil
}

// FreeInstanceID returns id to the pool.
func (m *Manager) FreeInstanceID(id uint32) {
	m.ids.free(id)
	m.deps.Metrics.InstanceIDsInUse(m.ids.count())
}

// InstanceIDsInUse returns the number of allocated instance ids.
func (m *Manager) InstanceIDsInUse() int { return m.ids.count() }

// FindMap returns the live map for (mapID, instanceID), nil when none.
func (m *Manager) FindMap(mapID, instanceID uint32) *world.Map {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maps[mapKey{mapID, instanceID}]
}

// FindBaseMap returns the non-instanced map of mapID.
func (m *Manager) FindBaseMap(mapID uint32) *world.Map {
	return m.FindMap(mapID, 0)
}

// MapCount returns the number of live maps, instances included.
func (m *Manager) MapCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.maps)
}

// PlayerCount returns the players over every live map.
func (m *Manager) PlayerCount() int {
	n := 0
	for _, mp := range m.Maps() {
		n += mp.PlayerCount()
	}
	return n
}

// Maps returns the live maps ordered by (map id, instance id).
func (m *Manager) Maps() []*world.Map {
	m.mu.RLock()
	keys := make([]mapKey, 0, len(m.maps))
	for k := range m.maps {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	out := make([]*world.Map, len(keys))
	for i, k := range keys {
		out[i] = m.maps[k]
	}
	m.mu.RUnlock()
	return out
}

// CreateMap returns the map p should enter for mapID, creating it when needed.
func (m *Manager) CreateMap(mapID uint32, p *world.Player) (*world.Map, error) {
	entry, ok := m.deps.Entries.MapEntry(mapID)
	if !ok {
		return nil, fmt.Errorf("create map %d: %w", mapID, ErrUnknownMap)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case entry.Kind.IsBattlegroundOrArena():
		id := p.BattlegroundID()
		if id == 0 {
			return nil, fmt.Errorf("create map %d for %s: %w", mapID, p.GUID(), ErrNoBattleground)
		}
		if mp := m.maps[mapKey{mapID, id}]; mp != nil {
			return mp, nil
		}
		return nil, fmt.Errorf("create map %d instance %d for %s: %w", mapID, id, p.GUID(), ErrNoBattleground)

	case entry.Kind.IsDungeon():
		return m.createDungeonLocked(entry, p)

	case entry.Kind == world.KindGarrison:
		id := uint32(p.GUID().Counter())
		if mp := m.maps[mapKey{mapID, id}]; mp != nil {
			return mp, nil
		}
		return m.createLocked(entry, id, p.Difficulty(), nil, false)

	default:
		var id uint32
		if entry.FactionSplit {
			id = p.Team()
		}
		if mp := m.maps[mapKey{mapID, id}]; mp != nil {
			return mp, nil
		}
		return m.createLocked(entry, id, 0, nil, false)
	}
}

// createDungeonLocked resolves the instance of a dungeon or raid from the
// instance lock of the player or its group.
func (m *Manager) createDungeonLocked(entry *world.Entry, p *world.Player) (*world.Map, error) {
	group := p.Group()
	difficulty := p.Difficulty()
	owner := p.GUID()
	if group != nil {
		difficulty = group.Difficulty(entry.ID)
		if recent, _ := group.RecentInstance(entry.ID); !recent.IsEmpty() {
			owner = recent
		} else {
			owner = group.GUID()
		}
	}
	de, _ := entry.Difficulty(difficulty)
	difficulty = de.ID
	entries := entry.LockEntries(difficulty)

	var (
		lock      *instance.Lock
		id        uint32
		generated bool
	)
	if m.deps.Locks != nil {
		lock = m.deps.Locks.FindActiveInstanceLock(owner, entries)
	}
	if lock != nil {
		id = lock.InstanceID
		if !entry.FlexLocking {
			difficulty = lock.Difficulty
		}
	} else {
		if !entries.HasResetSchedule() {
			if group != nil {
				_, id = group.RecentInstance(entry.ID)
			} else {
				id = p.RecentInstance(entry.ID)
			}
		}
		if id == 0 {
			var err error
			if id, err = m.GenerateInstanceID(); err != nil {
				return nil, fmt.Errorf("create map %d: %w", entry.ID, err)
			}
			generated = true
		}
		if m.deps.Locks != nil {
			lock = m.deps.Locks.CreateInstanceLockForNewInstance(owner, entries, id)
		}
	}

	mp := m.maps[mapKey{entry.ID, id}]
	if mp != nil && lock != nil && !entries.InstanceIDBound && mp.InstanceLock() != lock {
		// Boss-based locks: the id is taken by another owner's instance.
		newID, err := m.GenerateInstanceID()
		if err != nil {
			return nil, fmt.Errorf("create map %d: %w", entry.ID, err)
		}
		m.deps.Locks.SetLockInstanceID(lock, newID)
		id, generated, mp = newID, true, nil
	}
	if mp != nil {
		return mp, nil
	}

	mp, err := m.createLocked(entry, id, difficulty, lock, generated)
	if err != nil {
		return nil, err
	}
	if group != nil {
		group.SetRecentInstance(entry.ID, owner, id)
	} else {
		p.SetRecentInstance(entry.ID, id)
	}
	return mp, nil
}

// CreateBattlegroundMap creates a new battleground or arena instance.
func (m *Manager) CreateBattlegroundMap(mapID uint32) (*world.Map, error) {
	entry, ok := m.deps.Entries.MapEntry(mapID)
	if !ok {
		return nil, fmt.Errorf("create battleground %d: %w", mapID, ErrUnknownMap)
	}
	if !entry.Kind.IsBattlegroundOrArena() {
		return nil, fmt.Errorf("create battleground %d: %w", mapID, world.ErrNotInstanceable)
	}
	id, err := m.GenerateInstanceID()
	if err != nil {
		return nil, fmt.Errorf("create battleground %d: %w", mapID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(entry, id, 0, nil, true)
}

// createLocked builds and registers a map. A map that fails to build is never
// registered and an id generated for it goes back to the pool.
func (m *Manager) createLocked(entry *world.Entry, instanceID uint32, difficulty uint8, lock *instance.Lock, generated bool) (*world.Map, error) {
	mp, err := world.NewMap(context.Background(), world.Params{
		Entry:           entry,
		InstanceID:      instanceID,
		Difficulty:      difficulty,
		Config:          m.cfg.Map,
		Spawns:          m.deps.Spawns,
		Pools:           m.deps.Pools,
		Terrain:         m.deps.Terrain,
		Respawns:        m.deps.Respawns,
		Visibility:      m.deps.Visibility,
		Updates:         m.deps.Updates,
		Conditions:      m.deps.Conditions,
		EntryPoints:     m.deps.EntryPoints,
		TransportEvents: m.deps.TransportEvents,
		Metrics:         m.deps.Metrics,
		Locks:           m.deps.Locks,
		Lock:            lock,
		Scripts:         m.deps.Scripts,
		Now:             m.deps.Now,
	})
	if err != nil {
		if generated {
			m.FreeInstanceID(instanceID)
		}
		return nil, err
	}
	m.maps[mapKey{entry.ID, instanceID}] = mp
	if instanceID == 0 {
		m.spawnTransports(mp)
	}
	return mp, nil
}

// spawnTransports puts every transport whose path starts on mp onto it.
func (m *Manager) spawnTransports(mp *world.Map) {
	if m.deps.Transports == nil {
		return
	}
	for _, tmpl := range m.deps.Transports.ForMap(mp.ID()) {
		t := transport.New(m.transportGUIDs.Next(model.TypeTransport), tmpl, mp.GameTime())
		if err := mp.AddTransport(t); err != nil {
			slog.Warn("transport not spawned", "map", mp.ID(), "entry", tmpl.Entry, "error", err)
		}
	}
}

// DestroyMap unloads mp and forgets it. It fails while players are inside so
// the next pass can re-evaluate.
func (m *Manager) DestroyMap(mp *world.Map) error {
	mp.RemoveAllPlayers()

	key := mapKey{mp.ID(), mp.InstanceID()}
	m.mu.Lock()
	if m.maps[key] != mp {
		m.mu.Unlock()
		return fmt.Errorf("destroy map %d instance %d: %w", key.mapID, key.instanceID, ErrMapNotManaged)
	}
	if mp.HavePlayers() {
		m.mu.Unlock()
		return fmt.Errorf("destroy map %d instance %d: %w", key.mapID, key.instanceID, world.ErrMapHasPlayers)
	}
	delete(m.maps, key)
	m.mu.Unlock()

	mp.UnloadAll()
	if mp.Kind().Instanceable() && key.instanceID != 0 {
		m.releaseInstance(mp)
	}
	slog.Info("map destroyed", "map", key.mapID, "instance", key.instanceID)
	return nil
}

// releaseInstance frees the id of a destroyed instance unless a lock still refers to it.
func (m *Manager) releaseInstance(mp *world.Map) {
	id := mp.InstanceID()
	if mp.Kind().IsDungeon() && m.deps.Locks != nil {
		timeout := m.cfg.Map.PersistTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := m.deps.Locks.OnInstanceDestroyed(ctx, id); err != nil {
			slog.Error("releasing instance locks", "map", mp.ID(), "instance", id, "error", err)
		}
		if m.deps.Locks.IsReferenced(id) {
			return
		}
	}
	if mp.Kind() == world.KindGarrison {
		return
	}
	m.FreeInstanceID(id)
}

// Update advances every map once the update interval has accumulated.
func (m *Manager) Update(diff time.Duration) {
	m.timer.Update(diff)
	if !m.timer.Passed() {
		return
	}
	elapsed := m.timer.Current()
	m.timer.SetCurrent(0)

	var live []*world.Map
	for _, mp := range m.Maps() {
		if !mp.CanUnload(elapsed) {
			live = append(live, mp)
			continue
		}
		if err := m.DestroyMap(mp); err != nil {
			slog.Debug("map kept", "map", mp.ID(), "instance", mp.InstanceID(), "reason", err)
			live = append(live, mp)
		}
	}

	var g errgroup.Group
	g.SetLimit(m.cfg.UpdateThreads)
	for _, mp := range live {
		g.Go(func() error {
			mp.Update(elapsed)
			return nil
		})
	}
	_ = g.Wait()

	for _, mp := range live {
		mp.DelayedUpdate(elapsed)
	}
	for _, mp := range live {
		m.transferTransports(mp)
	}

	if m.deps.Terrain != nil {
		m.deps.Terrain.Update(elapsed)
	}
}

// transferTransports moves transports that left from onto the base map of their next leg.
func (m *Manager) transferTransports(from *world.Map) {
	for _, tr := range from.TakeTransportTransfers() {
		to, err := m.baseMap(tr.ToMap)
		if err != nil {
			slog.Error("transport transfer", "guid", tr.Transport.GUID, "from", tr.FromMap, "to", tr.ToMap, "error", err)
			continue
		}
		// Keep path time continuous across the two map clocks.
		tr.Transport.PathStart += to.GameTime() - from.GameTime()
		if err := to.AddTransport(tr.Transport); err != nil {
			slog.Error("transport transfer", "guid", tr.Transport.GUID, "from", tr.FromMap, "to", tr.ToMap, "error", err)
		}
	}
}

// baseMap finds or creates the non-instanced map of mapID.
func (m *Manager) baseMap(mapID uint32) (*world.Map, error) {
	entry, ok := m.deps.Entries.MapEntry(mapID)
	if !ok {
		return nil, fmt.Errorf("base map %d: %w", mapID, ErrUnknownMap)
	}
	if entry.Kind.Instanceable() {
		return nil, fmt.Errorf("base map %d: %w", mapID, world.ErrNotInstanceable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mp := m.maps[mapKey{mapID, 0}]; mp != nil {
		return mp, nil
	}
	return m.createLocked(entry, 0, 0, nil, false)
}

// Run ticks the manager until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	slog.Info("map manager started", "interval", m.cfg.UpdateInterval, "threads", m.cfg.UpdateThreads)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			slog.Info("map manager stopping")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case now := <-ticker.C:
			diff := now.Sub(last)
			last = now
			m.Update(diff)
		}
	}
}

// UnloadAll tears down every map.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	maps := m.maps
	m.maps = make(map[mapKey]*world.Map)
	m.mu.Unlock()

	keys := make([]mapKey, 0, len(maps))
	for k := range maps {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	for _, k := range keys {
		mp := maps[k]
		mp.RemoveAllPlayers()
		mp.UnloadAll()
	}
	if m.deps.Terrain != nil {
		m.deps.Terrain.UnloadAll()
	}
	slog.Info("all maps unloaded", "count", len(keys))
}
