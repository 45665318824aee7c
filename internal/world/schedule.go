package world

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"
)

type scheduledScript struct {
	at  time.Duration
	seq uint64
	fn  func(*Map)
}

// scriptSchedule holds map scripts due at a game time.
type scriptSchedule struct {
	mu      sync.Mutex
	pending []scheduledScript
	seq     uint64
}

// ScheduleScript runs fn on the tick goroutine once delay of game time has passed.
func (m *Map) ScheduleScript(delay time.Duration, fn func(*Map)) {
	s := &m.scripts
	s.mu.Lock()
	s.seq++
	s.pending = append(s.pending, scheduledScript{at: m.GameTime() + delay, seq: s.seq, fn: fn})
	s.mu.Unlock()
}

// ScheduledScripts returns the number of scripts not yet run.
func (m *Map) ScheduledScripts() int {
	m.scripts.mu.Lock()
	defer m.scripts.mu.Unlock()
	return len(m.scripts.pending)
}

func (m *Map) runScripts() {
	now := m.GameTime()
	s := &m.scripts
	s.mu.Lock()
	var due []scheduledScript
	s.pending = slices.DeleteFunc(s.pending, func(sc scheduledScript) bool {
		if sc.at > now {
			return false
		}
		due = append(due, sc)
		return true
	})
	s.mu.Unlock()

	slices.SortFunc(due, func(a, b scheduledScript) int {
		if c := cmp.Compare(a.at, b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	for _, sc := range due {
		sc.fn(m)
	}
}

// Weather is the state of one zone.
type Weather struct {
	Type      uint32
	Grade     float32
	Remaining time.Duration
}

type weatherTracker struct {
	mu    sync.Mutex
	zones map[uint32]*Weather
}

func (w *weatherTracker) init() {
	w.zones = make(map[uint32]*Weather)
}

// SetZoneWeather sets the weather of a zone for duration; zero keeps it until replaced.
func (m *Map) SetZoneWeather(zoneID, weatherType uint32, grade float32, duration time.Duration) {
	m.weather.mu.Lock()
	m.weather.zones[zoneID] = &Weather{Type: weatherType, Grade: grade, Remaining: duration}
	m.weather.mu.Unlock()
	slog.Debug("zone weather changed", "map", m.ID(), "zone", zoneID, "type", weatherType, "grade", grade)
}

// ZoneWeather returns the weather of a zone.
func (m *Map) ZoneWeather(zoneID uint32) (Weather, bool) {
	m.weather.mu.Lock()
	defer m.weather.mu.Unlock()
	w, ok := m.weather.zones[zoneID]
	if !ok {
		return Weather{}, false
	}
	return *w, true
}

func (w *weatherTracker) update(diff time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, z := range w.zones {
		if z.Remaining == 0 {
			continue
		}
		if z.Remaining <= diff {
			delete(w.zones, id)
			continue
		}
		z.Remaining -= diff
	}
}
