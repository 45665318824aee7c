package world

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

type moveState uint8

const (
	moveNone moveState = iota
	moveActive
	moveInactive
)

// Object is an entity placed on a map. Its cell is stored by value;
// grids hold only its GUID.
type Object struct {
	guid      model.GUID
	entry     uint32
	spawnType spawn.Type
	spawnID   uint64

	mu        sync.Mutex
	pos       model.Position
	home      model.Position
	cell      cell.CellCoord
	newPos    model.Position
	moveState moveState
	inWorld   bool
	behavior  Behavior

	// worldContainer objects live in the cell's world set (players, transports).
	worldContainer bool
	// phaseOwner is set for personal-phase spawns.
	phaseOwner model.GUID
	phaseID    uint32

	active   atomic.Bool
	alive    atomic.Bool
	escorted atomic.Bool
	notify   atomic.Bool
	// homeLock records the grid whose unload lock this object holds.
	homeLock atomic.Int32
}

// NewObject creates a non-spawned object (summons, dynamic objects).
func NewObject(guid model.GUID, entry uint32, pos model.Position) *Object {
	o := &Object{guid: guid, entry: entry, pos: pos, home: pos}
	o.alive.Store(true)
	o.homeLock.Store(-1)
	o.worldContainer = guid.Type() == model.TypePlayer || guid.Type() == model.TypeTransport
	return o
}

func newSpawnObject(guid model.GUID, d *spawn.Data) *Object {
	o := NewObject(guid, d.Entry, d.Position)
	o.spawnType = d.Type
	o.spawnID = d.SpawnID
	o.active.Store(d.Active)
	return o
}

// Аксессоры объекта. Флаги alive и escorted атомарные и читаются без блокировки.
func (o *Object) GUID() model.GUID       { return o.guid }
func (o *Object) Type() model.ObjectType { return o.guid.Type() }
func (o *Object) Entry() uint32          { return o.entry }
func (o *Object) SpawnID() uint64        { return o.spawnID }
func (o *Object) SpawnType() spawn.Type  { return o.spawnType }
func (o *Object) PhaseOwner() model.GUID { return o.phaseOwner }
func (o *Object) IsPlayer() bool         { return o.guid.Type() == model.TypePlayer }
func (o *Object) IsActive() bool         { return o.active.Load() }
func (o *Object) IsAlive() bool          { return o.alive.Load() }
func (o *Object) SetAlive(alive bool)    { o.alive.Store(alive) }
func (o *Object) IsEscorted() bool       { return o.escorted.Load() }
func (o *Object) SetEscorted(v bool)     { o.escorted.Store(v) }
func (o *Object) spawnKey() spawn.Key    { return spawn.Key{Type: o.spawnType, SpawnID: o.spawnID} }
func (o *Object) isSpawned() bool        { return o.spawnID != 0 }
func (o *Object) setNotify()             { o.notify.Store(true) }
func (o *Object) resetNotify()           { o.notify.Store(false) }
func (o *Object) needsNotify() bool      { return o.notify.Load() }

// Position returns the current position.
func (o *Object) Position() model.Position {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pos
}

// Cell returns the cell the object is attached to.
func (o *Object) Cell() cell.CellCoord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cell
}

// HomePosition возвращает точку спавна, к которой объект возвращается при выгрузке грида.
func (o *Object) HomePosition() model.Position {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.home
}

// SetHomePosition задаёт новую домашнюю точку.
func (o *Object) SetHomePosition(p model.Position) {
	o.mu.Lock()
	o.home = p
	o.mu.Unlock()
}

// SetBehavior installs the per-tick driver.
func (o *Object) SetBehavior(b Behavior) {
	o.mu.Lock()
	o.behavior = b
	o.mu.Unlock()
}

func (o *Object) getBehavior() Behavior {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.behavior
}

// IsInWorld reports whether the object is attached to a map.
func (o *Object) IsInWorld() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inWorld
}

func (o *Object) place(pos model.Position, c cell.CellCoord) {
	o.mu.Lock()
	o.pos = pos
	o.cell = c
	o.mu.Unlock()
}

func (o *Object) setInWorld(v bool) {
	o.mu.Lock()
	o.inWorld = v
	if !v {
		o.moveState = moveNone
	}
	o.mu.Unlock()
}

type pendingBind struct {
	instanceID uint32
	remaining  time.Duration
}

// Player is an Object driven by a session.
type Player struct {
	Object

	session Session

	gm      atomic.Bool
	loading atomic.Bool

	pmu         sync.Mutex
	team        uint32
	group       PlayerGroup
	bgID        uint32
	difficulty  uint8
	viewpoint   model.GUID
	opponents   []model.GUID
	auraCasters []model.GUID
	summons     []model.GUID
	bind        pendingBind
	visible     map[model.GUID]struct{}
	recent      map[uint32]uint32
	phases      []uint32
}

// NewPlayer creates a player at pos.
func NewPlayer(guid model.GUID, session Session, pos model.Position) *Player {
	p := &Player{
		session: session,
		visible: make(map[model.GUID]struct{}),
		recent:  make(map[uint32]uint32),
	}
	p.guid = guid
	p.pos = pos
	p.home = pos
	p.worldContainer = true
	p.homeLock.Store(-1)
	p.alive.Store(true)
	return p
}

// Session возвращает сессию игрока; флаги GM и загрузки атомарные.
func (p *Player) Session() Session     { return p.session }
func (p *Player) IsGameMaster() bool   { return p.gm.Load() }
func (p *Player) SetGameMaster(v bool) { p.gm.Store(v) }
func (p *Player) IsLoading() bool      { return p.loading.Load() }
func (p *Player) SetLoading(v bool)    { p.loading.Store(v) }

// Team возвращает фракцию игрока.
func (p *Player) Team() uint32 {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	return p.team
}

// SetTeam задаёт фракцию игрока.
func (p *Player) SetTeam(team uint32) {
	p.pmu.Lock()
	p.team = team
	p.pmu.Unlock()
}

// Group возвращает группу игрока или nil.
func (p *Player) Group() PlayerGroup {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	return p.group
}

// SetGroup задаёт группу игрока.
func (p *Player) SetGroup(g PlayerGroup) {
	p.pmu.Lock()
	p.group = g
	p.pmu.Unlock()
}

// BattlegroundID is the battleground instance the player is queued into.
func (p *Player) BattlegroundID() uint32 {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	return p.bgID
}

// SetBattlegroundID задаёт поле боя, в которое записан игрок.
func (p *Player) SetBattlegroundID(id uint32) {
	p.pmu.Lock()
	p.bgID = id
	p.pmu.Unlock()
}

// Difficulty возвращает выбранную сложность подземелий.
func (p *Player) Difficulty() uint8 {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	return p.difficulty
}

// SetDifficulty задаёт сложность подземелий.
func (p *Player) SetDifficulty(d uint8) {
	p.pmu.Lock()
	p.difficulty = d
	p.pmu.Unlock()
}

// SetViewpoint sets the far-sight target; zero clears it.
func (p *Player) SetViewpoint(guid model.GUID) {
	p.pmu.Lock()
	p.viewpoint = guid
	p.pmu.Unlock()
}

// SetCombatOpponents запоминает противников, которых игрок держит в зоне видимости.
func (p *Player) SetCombatOpponents(guids []model.GUID) {
	p.pmu.Lock()
	p.opponents = slices.Clone(guids)
	p.pmu.Unlock()
}

// SetAuraCasters запоминает источников аур на игроке.
func (p *Player) SetAuraCasters(guids []model.GUID) {
	p.pmu.Lock()
	p.auraCasters = slices.Clone(guids)
	p.pmu.Unlock()
}

// SetSummons запоминает призванных игроком существ.
func (p *Player) SetSummons(guids []model.GUID) {
	p.pmu.Lock()
	p.summons = slices.Clone(guids)
	p.pmu.Unlock()
}

// relatedObjects returns the viewpoint followed by every object that keeps
// cells near it simulated.
func (p *Player) relatedObjects() (model.GUID, []model.GUID) {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	out := make([]model.GUID, 0, len(p.opponents)+len(p.auraCasters)+len(p.summons))
	out = append(out, p.opponents...)
	out = append(out, p.auraCasters...)
	out = append(out, p.summons...)
	return p.viewpoint, out
}

// SetPendingBind starts the bind countdown for instanceID.
func (p *Player) SetPendingBind(instanceID uint32, delay time.Duration) {
	p.pmu.Lock()
	p.bind = pendingBind{instanceID: instanceID, remaining: delay}
	p.pmu.Unlock()
}

// PendingBind returns the pending instance bind, zero when none.
func (p *Player) PendingBind() (uint32, time.Duration) {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	return p.bind.instanceID, p.bind.remaining
}

// RecentInstance is the instance id last used by the player on a map without a reset schedule.
func (p *Player) RecentInstance(mapID uint32) uint32 {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	return p.recent[mapID]
}

// SetRecentInstance запоминает последний инстанс карты без расписания сброса.
func (p *Player) SetRecentInstance(mapID, instanceID uint32) {
	p.pmu.Lock()
	p.recent[mapID] = instanceID
	p.pmu.Unlock()
}

// PersonalPhases returns the personal phases the player owns.
func (p *Player) PersonalPhases() []uint32 {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	return slices.Clone(p.phases)
}

func (p *Player) addPersonalPhase(id uint32) bool {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	if slices.Contains(p.phases, id) {
		return false
	}
	p.phases = append(p.phases, id)
	return true
}

// CanSee reports whether obj is in the player's visible set.
func (p *Player) CanSee(obj model.GUID) bool {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	_, ok := p.visible[obj]
	return ok
}

// VisibleObjects returns the visible set.
func (p *Player) VisibleObjects() []model.GUID {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	out := make([]model.GUID, 0, len(p.visible))
	for g := range p.visible {
		out = append(out, g)
	}
	slices.Sort(out)
	return out
}

// updateVisible replaces the visible set and returns the differences.
func (p *Player) updateVisible(now map[model.GUID]struct{}) (appeared, disappeared []model.GUID) {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	for g := range now {
		if _, ok := p.visible[g]; !ok {
			appeared = append(appeared, g)
		}
	}
	for g := range p.visible {
		if _, ok := now[g]; !ok {
			disappeared = append(disappeared, g)
		}
	}
	p.visible = now
	slices.Sort(appeared)
	slices.Sort(disappeared)
	return appeared, disappeared
}

func (p *Player) forget(obj model.GUID) bool {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	if _, ok := p.visible[obj]; !ok {
		return false
	}
	delete(p.visible, obj)
	return true
}

func (p *Player) tickPendingBind(diff time.Duration) (uint32, bool) {
	p.pmu.Lock()
	defer p.pmu.Unlock()
	if p.bind.instanceID == 0 {
		return 0, false
	}
	if p.bind.remaining > diff {
		p.bind.remaining -= diff
		return 0, false
	}
	id := p.bind.instanceID
	p.bind = pendingBind{}
	return id, true
}
