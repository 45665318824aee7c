package world

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/worldcore/internal/instance"
)

// EnterState is the reason a player may not enter a map.
type EnterState uint8

const (
	EnterOK EnterState = iota
	EnterAlreadyInMap
	EnterMaxPlayers
	EnterZoneInCombat
	EnterWrongInstance
	EnterAlreadyCompletedEncounter
	EnterError
)

func (s EnterState) String() string {
	switch s {
	case EnterOK:
		return "ok"
	case EnterAlreadyInMap:
		return "already in map"
	case EnterMaxPlayers:
		return "max players"
	case EnterZoneInCombat:
		return "zone in combat"
	case EnterWrongInstance:
		return "instance bind mismatch"
	case EnterAlreadyCompletedEncounter:
		return "already completed encounter"
	default:
		return "error"
	}
}

// Err maps the state to its sentinel error, nil for EnterOK.
func (s EnterState) Err() error {
	switch s {
	case EnterOK:
		return nil
	case EnterAlreadyInMap:
		return ErrAlreadyInMap
	case EnterMaxPlayers:
		return ErrMaxPlayers
	case EnterZoneInCombat:
		return ErrZoneInCombat
	case EnterWrongInstance:
		return ErrWrongInstance
	case EnterAlreadyCompletedEncounter:
		return ErrAlreadyCompleted
	default:
		return ErrCannotEnter
	}
}

// ResetMethod is what triggered an instance reset.
type ResetMethod uint8

const (
	ResetManual ResetMethod = iota
	ResetOnChangeDifficulty
	ResetExpire
)

// ResetResult is the outcome of Reset.
type ResetResult uint8

const (
	ResetSuccess ResetResult = iota
	ResetNotEmpty
	ResetCannotReset
)

func (r ResetResult) String() string {
	switch r {
	case ResetSuccess:
		return "success"
	case ResetNotEmpty:
		return "not empty"
	default:
		return "cannot reset"
	}
}

// CannotEnter checks whether p may enter the map.
func (m *Map) CannotEnter(p *Player) EnterState {
	if m.Player(p.guid) != nil {
		slog.Error("player already in map", "map", m.ID(), "instance", m.instanceID, "player", p.guid)
		return EnterAlreadyInMap
	}
	switch {
	case m.bg != nil:
		return m.bg.cannotEnter(m, p)
	case m.inst != nil:
		return m.inst.cannotEnter(m, p)
	}
	return EnterOK
}

// instanceState is the dungeon and raid extension of a Map.
type instanceState struct {
	m          *Map
	locks      *instance.Manager
	entries    instance.Entries
	maxPlayers int

	mu        sync.Mutex
	lock      *instance.Lock
	script    InstanceScript
	resetTime time.Time
}

func newInstanceState(m *Map, p Params) *instanceState {
	de, _ := p.Entry.Difficulty(m.difficulty)
	s := &instanceState{
		m:          m,
		locks:      p.Locks,
		entries:    p.Entry.LockEntries(m.difficulty),
		maxPlayers: de.MaxPlayers,
		lock:       p.Lock,
	}
	if s.locks != nil && s.entries.HasResetSchedule() {
		s.resetTime = s.locks.NextResetTime(s.entries)
	}
	return s
}

func (s *instanceState) completedMask() uint32 {
	if s.lock == nil || s.lock.Data == nil {
		return 0
	}
	return s.lock.Data.CompletedEncountersMask
}

func (s *instanceState) cannotEnter(m *Map, p *Player) EnterState {
	if p.IsGameMaster() {
		return EnterOK
	}
	if s.maxPlayers > 0 && m.PlayerCountExceptGMs() >= s.maxPlayers {
		return EnterMaxPlayers
	}

	s.mu.Lock()
	script := s.script
	lock := s.lock
	s.mu.Unlock()

	if !p.IsLoading() && m.Kind().IsRaid() && script != nil && script.IsEncounterInProgress() {
		return EnterZoneInCombat
	}
	if lock != nil && s.locks != nil {
		switch s.locks.CanJoinInstanceLock(p.guid, s.entries, lock) {
		case instance.AbortLockedToDifferentInstance:
			return EnterWrongInstance
		case instance.AbortAlreadyCompletedEncounter:
			return EnterAlreadyCompletedEncounter
		}
	}
	return EnterOK
}

// beforePlayerEnter warns p that it will be bound to the instance's progress.
func (s *instanceState) beforePlayerEnter(p *Player) {
	s.mu.Lock()
	mask := s.completedMask()
	hasLock := s.lock != nil
	s.mu.Unlock()

	if !s.entries.HasResetSchedule() || !hasLock || mask == 0 || s.entries.UsesEncounterLocks || s.locks == nil {
		return
	}
	own := s.locks.FindActiveInstanceLock(p.guid, s.entries)
	now := s.locks.Now()
	if own != nil && !(own.IsExpired(now) && own.Extended) && own.Data.CompletedEncountersMask == mask {
		return
	}
	s.sendPendingBind(p, mask, own != nil && own.Extended)
}

func (s *instanceState) sendPendingBind(p *Player, mask uint32, extending bool) {
	delay := s.m.cfg.PendingBindDelay
	if p.session != nil {
		p.session.Notify(Notice{
			Kind:          NoticePendingBind,
			MapID:         s.m.ID(),
			InstanceID:    s.m.instanceID,
			CompletedMask: mask,
			Delay:         delay,
			Extending:     extending,
			WarningOnly:   s.entries.FlexLocking,
		})
	}
	if !s.entries.FlexLocking {
		p.SetPendingBind(s.m.instanceID, delay)
	}
}

func (s *instanceState) afterPlayerEnter(p *Player) {
	s.mu.Lock()
	script := s.script
	s.mu.Unlock()
	if script != nil {
		script.OnPlayerEnter(p.guid)
	}
}

// unloadWhenEmpty reports whether the map should go away as soon as it empties.
func (s *instanceState) unloadWhenEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock != nil && s.locks != nil && s.lock.IsExpired(s.locks.Now())
}

func (s *instanceState) update(diff time.Duration) {
	s.mu.Lock()
	script := s.script
	s.mu.Unlock()
	if script != nil {
		script.Update(diff)
	}

	for _, p := range s.m.Players() {
		if id, fired := p.tickPendingBind(diff); fired && id == s.m.instanceID {
			s.bindPlayer(p)
		}
	}

	if s.locks == nil {
		return
	}
	s.mu.Lock()
	due := !s.resetTime.IsZero() && !s.locks.Now().Before(s.resetTime)
	s.mu.Unlock()
	if !due {
		return
	}
	res := s.m.Reset(ResetExpire)
	slog.Info("instance expired", "map", s.m.ID(), "instance", s.m.instanceID, "result", res)
	s.mu.Lock()
	s.resetTime = s.locks.NextResetTime(s.entries)
	s.mu.Unlock()
}

func (s *instanceState) saveData() string {
	s.mu.Lock()
	script := s.script
	s.mu.Unlock()
	if script == nil {
		return ""
	}
	return script.SaveData()
}

func (s *instanceState) persistContext() (context.Context, context.CancelFunc) {
	timeout := s.m.cfg.PersistTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// bindPlayer makes the pending bind of p permanent.
func (s *instanceState) bindPlayer(p *Player) {
	if s.locks == nil {
		return
	}
	ev := instance.UpdateEvent{InstanceID: s.m.instanceID, NewData: s.saveData(), EncounterBit: -1}
	ctx, cancel := s.persistContext()
	defer cancel()
	err := s.locks.Commit(ctx, func(tx instance.Tx) error {
		_, err := s.locks.UpdateInstanceLockForPlayer(ctx, tx, p.guid, s.entries, ev)
		return err
	})
	if err != nil {
		slog.Error("binding player to instance", "map", s.m.ID(), "instance", s.m.instanceID, "player", p.guid, "error", err)
		return
	}
	if p.session != nil {
		p.session.Notify(Notice{Kind: NoticeInstanceBound, MapID: s.m.ID(), InstanceID: s.m.instanceID})
	}
}

func (s *instanceState) close() {
	s.mu.Lock()
	script := s.script
	s.script = nil
	s.mu.Unlock()
	if script != nil {
		script.Close()
	}
}

// CreateInstanceData builds the instance script and seeds it from the lock.
func (m *Map) CreateInstanceData(factory ScriptFactory) {
	s := m.inst
	if s == nil || factory == nil || m.entry.ScriptName == "" {
		return
	}
	s.mu.Lock()
	exists := s.script != nil
	s.mu.Unlock()
	if exists {
		return
	}

	script, err := factory(m.entry.ScriptName, m)
	if err != nil {
		slog.Error("creating instance script", "map", m.ID(), "instance", m.instanceID, "script", m.entry.ScriptName, "error", err)
		return
	}
	if script == nil {
		return
	}
	s.mu.Lock()
	s.script = script
	lock := s.lock
	s.mu.Unlock()

	if lock == nil || lock.InstanceID == 0 || lock.Data == nil {
		script.Create()
		return
	}
	data := *lock.Data
	if data.CompletedEncountersMask == 0 && data.Data == "" {
		script.Create()
		return
	}
	script.SetCompletedEncountersMask(data.CompletedEncountersMask)
	if data.Data == "" {
		script.Create()
		return
	}
	if err := script.Load(data.Data); err != nil {
		slog.Error("loading instance data", "map", m.ID(), "instance", m.instanceID, "error", err)
	}
}

// InstanceScript returns the script of an instance map, nil when none.
func (m *Map) InstanceScript() InstanceScript {
	if m.inst == nil {
		return nil
	}
	m.inst.mu.Lock()
	defer m.inst.mu.Unlock()
	return m.inst.script
}

// InstanceLock returns the lock the instance was created for.
func (m *Map) InstanceLock() *instance.Lock {
	if m.inst == nil {
		return nil
	}
	m.inst.mu.Lock()
	defer m.inst.mu.Unlock()
	return m.inst.lock
}

// MaxPlayers returns the player cap of an instance map, zero when uncapped.
func (m *Map) MaxPlayers() int {
	if m.inst == nil {
		return 0
	}
	return m.inst.maxPlayers
}

// ResetTime returns the next scheduled expiry of an instance map.
func (m *Map) ResetTime() time.Time {
	if m.inst == nil {
		return time.Time{}
	}
	m.inst.mu.Lock()
	defer m.inst.mu.Unlock()
	return m.inst.resetTime
}

// CompleteEncounter records an encounter kill reported by the instance script.
func (m *Map) CompleteEncounter(bit int) {
	if err := m.UpdateInstanceLock(bit); err != nil {
		slog.Error("updating instance lock", "map", m.ID(), "instance", m.instanceID, "bit", bit, "error", err)
	}
}

// UpdateInstanceLock saves the completion of an encounter for the instance and
// every non-GM player in it.
func (m *Map) UpdateInstanceLock(encounterBit int) error {
	s := m.inst
	if s == nil {
		return fmt.Errorf("update instance lock on map %d: %w", m.ID(), ErrNotInstanceable)
	}
	s.mu.Lock()
	lock := s.lock
	s.mu.Unlock()
	if lock == nil || s.locks == nil {
		return nil
	}

	ev := instance.UpdateEvent{
		InstanceID:   m.instanceID,
		NewData:      s.saveData(),
		EncounterBit: encounterBit,
	}
	type bound struct {
		p     *Player
		isNew bool
	}
	var created []bound

	ctx, cancel := s.persistContext()
	defer cancel()
	err := s.locks.Commit(ctx, func(tx instance.Tx) error {
		created = created[:0]
		if s.entries.InstanceIDBound {
			if err := s.locks.UpdateSharedInstanceLock(ctx, tx, ev); err != nil {
				return err
			}
		}
		now := s.locks.Now()
		for _, p := range m.Players() {
			if p.IsGameMaster() {
				continue
			}
			own := s.locks.FindActiveInstanceLock(p.guid, s.entries)
			isNew := own == nil || own.Data.CompletedEncountersMask == 0 || own.IsExpired(now)
			if _, err := s.locks.UpdateInstanceLockForPlayer(ctx, tx, p.guid, s.entries, ev); err != nil {
				return err
			}
			created = append(created, bound{p: p, isNew: isNew})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update instance lock %d: %w", m.instanceID, err)
	}
	for _, b := range created {
		if b.isNew && b.p.session != nil {
			b.p.session.Notify(Notice{Kind: NoticeInstanceBound, MapID: m.ID(), InstanceID: m.instanceID})
		}
	}
	slog.Info("encounter completed", "map", m.ID(), "instance", m.instanceID, "bit", encounterBit, "players", len(created))
	return nil
}

// Reset resets an instance map. An instance with completed encounters resets
// only on expiry; a populated instance is flagged and its players told.
func (m *Map) Reset(method ResetMethod) ResetResult {
	s := m.inst
	if s == nil {
		return ResetCannotReset
	}
	s.mu.Lock()
	mask := s.completedMask()
	s.mu.Unlock()

	if method != ResetExpire && mask != 0 {
		return ResetCannotReset
	}

	players := m.Players()
	if len(players) == 0 {
		m.SetUnload()
		return ResetSuccess
	}

	switch method {
	case ResetManual:
		for _, p := range players {
			if p.session != nil {
				p.session.Notify(Notice{Kind: NoticeResetFailed, MapID: m.ID(), InstanceID: m.instanceID})
			}
		}
	case ResetExpire:
		hasScript := m.InstanceScript() != nil
		for _, p := range players {
			if p.session != nil {
				p.session.Notify(Notice{Kind: NoticeInstanceExpired, MapID: m.ID(), InstanceID: m.instanceID})
			}
			if hasScript {
				s.sendPendingBind(p, mask, true)
			}
		}
	}
	return ResetNotEmpty
}
