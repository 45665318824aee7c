package world

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

type phaseKey struct {
	owner  model.GUID
	phase  uint32
	gridID uint32
}

// PhaseTracker records personal-phase spawns loaded per (owner, phase, grid)
// and destroys them some time after their owner leaves the map.
type PhaseTracker struct {
	delay time.Duration

	mu      sync.Mutex
	loaded  map[phaseKey][]model.GUID
	byGUID  map[model.GUID]phaseKey
	pending map[model.GUID]time.Duration
}

func newPhaseTracker(delay time.Duration) *PhaseTracker {
	return &PhaseTracker{
		delay:   delay,
		loaded:  make(map[phaseKey][]model.GUID),
		byGUID:  make(map[model.GUID]phaseKey),
		pending: make(map[model.GUID]time.Duration),
	}
}

// beginLoad claims the (owner, phase, grid) slot. It reports false when already loaded.
func (t *PhaseTracker) beginLoad(owner model.GUID, phase, gridID uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := phaseKey{owner: owner, phase: phase, gridID: gridID}
	if _, ok := t.loaded[k]; ok {
		return false
	}
	t.loaded[k] = nil
	return true
}

func (t *PhaseTracker) track(o *Object, gridID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := phaseKey{owner: o.phaseOwner, phase: o.phaseID, gridID: gridID}
	t.loaded[k] = append(t.loaded[k], o.guid)
	t.byGUID[o.guid] = k
}

func (t *PhaseTracker) untrack(o *Object) {
	if o.phaseOwner.IsEmpty() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k, ok := t.byGUID[o.guid]
	if !ok {
		return
	}
	delete(t.byGUID, o.guid)
	list := t.loaded[k]
	if i := slices.Index(list, o.guid); i >= 0 {
		t.loaded[k] = slices.Delete(list, i, i+1)
	}
}

// owners returns the owners whose phase is loaded in the grid.
func (t *PhaseTracker) owners(phase, gridID uint32) []model.GUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.GUID
	for k := range t.loaded {
		if k.phase == phase && k.gridID == gridID {
			out = append(out, k.owner)
		}
	}
	slices.Sort(out)
	return out
}

// markOwnerForDeletion starts the teardown countdown of the owner's phase spawns.
func (t *PhaseTracker) markOwnerForDeletion(owner model.GUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.loaded {
		if k.owner == owner {
			t.pending[owner] = t.delay
			return
		}
	}
}

func (t *PhaseTracker) cancelDeletion(owner model.GUID) {
	t.mu.Lock()
	delete(t.pending, owner)
	t.mu.Unlock()
}

// purgeGrid forgets every slot of a grid being unloaded.
func (t *PhaseTracker) purgeGrid(gridID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, guids := range t.loaded {
		if k.gridID != gridID {
			continue
		}
		for _, g := range guids {
			delete(t.byGUID, g)
		}
		delete(t.loaded, k)
	}
}

// expired advances the countdowns and returns the objects of owners whose time ran out.
func (t *PhaseTracker) expired(diff time.Duration) []model.GUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.GUID
	for owner, left := range t.pending {
		if left > diff {
			t.pending[owner] = left - diff
			continue
		}
		delete(t.pending, owner)
		for k, guids := range t.loaded {
			if k.owner != owner {
				continue
			}
			for _, g := range guids {
				delete(t.byGUID, g)
			}
			out = append(out, guids...)
			delete(t.loaded, k)
		}
	}
	slices.Sort(out)
	return out
}

// ObjectCount returns the number of tracked personal spawns of owner.
func (t *PhaseTracker) ObjectCount(owner model.GUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, guids := range t.loaded {
		if k.owner == owner {
			n += len(guids)
		}
	}
	return n
}

// Update destroys the personal spawns of owners gone longer than the delete delay.
func (t *PhaseTracker) Update(m *Map, diff time.Duration) {
	for _, guid := range t.expired(diff) {
		m.AddObjectToRemoveList(guid)
	}
}

// Phases returns the personal-phase tracker of the map.
func (m *Map) Phases() *PhaseTracker { return m.phases }

// AddPersonalPhase gives p a personal phase and loads its spawns around p.
func (m *Map) AddPersonalPhase(p *Player, phaseID uint32) {
	if phaseID == 0 || !p.addPersonalPhase(phaseID) {
		return
	}
	slog.Debug("personal phase added", "map", m.ID(), "player", p.guid, "phase", phaseID)
	if m.Player(p.guid) != nil {
		m.updatePersonalPhasesFor(p)
	}
}

// updatePersonalPhasesFor loads the personal spawns of p in every loaded grid
// within its visibility range.
func (m *Map) updatePersonalPhasesFor(p *Player) {
	phases := p.PersonalPhases()
	if len(phases) == 0 {
		return
	}
	m.phases.cancelDeletion(p.guid)

	pos := p.Position()
	area := cell.CalculateCellArea(pos.X, pos.Y, m.vis.Distance)
	seen := make(map[cell.GridCoord]struct{})
	for x := area.Low.X; x <= area.High.X; x++ {
		for y := area.Low.Y; y <= area.High.Y; y++ {
			gc := cell.CellCoord{X: x, Y: y}.Grid()
			if _, ok := seen[gc]; ok {
				continue
			}
			seen[gc] = struct{}{}
			g := m.Grid(gc)
			if g == nil || !g.IsObjectDataLoaded() {
				continue
			}
			for _, id := range phases {
				m.loadPersonalSpawns(g, p, id)
			}
		}
	}
}

// spawnPersonal creates the owner's copy of a personal spawn and tracks it under gridID.
func (m *Map) spawnPersonal(d *spawn.Data, owner model.GUID, gridID uint32) (*Object, error) {
	o := newSpawnObject(m.guids.Next(d.Type.ObjectType()), d)
	o.phaseOwner = owner
	o.phaseID = d.PersonalPhase
	if err := m.AddToMap(o); err != nil {
		return nil, err
	}
	m.phases.track(o, gridID)
	return o, nil
}

// respawnPersonal brings a personal spawn back for every owner whose phase is
// loaded in its grid and who has no live copy of it.
func (m *Map) respawnPersonal(d *spawn.Data, gridID uint32) {
	for _, owner := range m.phases.owners(d.PersonalPhase, gridID) {
		if m.hasPersonalCopy(d, owner) {
			continue
		}
		if _, err := m.spawnPersonal(d, owner, gridID); err != nil {
			slog.Error("personal respawn failed", "map", m.ID(), "owner", owner, "spawnID", d.SpawnID, "error", err)
		}
	}
}

func (m *Map) hasPersonalCopy(d *spawn.Data, owner model.GUID) bool {
	for _, o := range m.ObjectsBySpawnID(d.Type, d.SpawnID) {
		if o.phaseOwner == owner && o.IsAlive() {
			return true
		}
	}
	return false
}
