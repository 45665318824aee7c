package world

import (
	"log/slog"
	"sync"
)

// battlegroundState is the battleground and arena extension of a Map.
type battlegroundState struct {
	mu    sync.Mutex
	teams map[uint32]int
}

func newBattlegroundState() *battlegroundState {
	return &battlegroundState{teams: make(map[uint32]int, 2)}
}

// cannotEnter rejects players queued into a different battleground instance.
func (b *battlegroundState) cannotEnter(m *Map, p *Player) EnterState {
	if p.BattlegroundID() != m.instanceID {
		slog.Debug("battleground bind mismatch", "map", m.ID(), "instance", m.instanceID, "player", p.guid, "bg", p.BattlegroundID())
		return EnterWrongInstance
	}
	return EnterOK
}

func (b *battlegroundState) joined(p *Player) {
	b.mu.Lock()
	b.teams[p.Team()]++
	b.mu.Unlock()
}

func (b *battlegroundState) left(p *Player) {
	b.mu.Lock()
	defer b.mu.Unlock()
	team := p.Team()
	if b.teams[team] <= 1 {
		delete(b.teams, team)
		return
	}
	b.teams[team]--
}

// TeamPlayerCount returns the players of a team on a battleground map.
func (m *Map) TeamPlayerCount(team uint32) int {
	if m.bg == nil {
		return 0
	}
	m.bg.mu.Lock()
	defer m.bg.mu.Unlock()
	return m.bg.teams[team]
}

// IsBattlegroundOrArena reports whether the map is a battleground instance.
func (m *Map) IsBattlegroundOrArena() bool { return m.bg != nil }
