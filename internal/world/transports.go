package world

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/transport"
)

// TransportTransfer is a transport that left this map for another one.
type TransportTransfer struct {
	Transport *transport.Transport
	FromMap   uint32
	ToMap     uint32
}

type mapTransport struct {
	obj *Object
	t   *transport.Transport
}

type transportSet struct {
	mu        sync.Mutex
	byGUID    map[model.GUID]*mapTransport
	transfers []TransportTransfer
}

func (s *transportSet) init() {
	s.byGUID = make(map[model.GUID]*mapTransport)
}

// list returns the transports ordered by guid.
func (s *transportSet) list() []*mapTransport {
	s.mu.Lock()
	out := make([]*mapTransport, 0, len(s.byGUID))
	for _, t := range s.byGUID {
		out = append(out, t)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b *mapTransport) int { return compareGUID(a.obj.guid, b.obj.guid) })
	return out
}

// AddTransport places a moving transport on the map at its current path position.
func (m *Map) AddTransport(t *transport.Transport) error {
	if t.MapID() != m.ID() {
		return fmt.Errorf("add transport %s to map %d: on map %d", t.GUID, m.ID(), t.MapID())
	}
	o := NewObject(t.GUID, t.Template.Entry, t.Position().Position)
	o.active.Store(true)
	if err := m.AddToMap(o); err != nil {
		return fmt.Errorf("add transport %s: %w", t.GUID, err)
	}
	m.transports.mu.Lock()
	m.transports.byGUID[t.GUID] = &mapTransport{obj: o, t: t}
	m.transports.mu.Unlock()
	slog.Debug("transport added", "map", m.ID(), "instance", m.instanceID, "guid", t.GUID, "entry", t.Template.Entry)
	return nil
}

func (m *Map) removeTransport(mt *mapTransport) {
	m.transports.mu.Lock()
	delete(m.transports.byGUID, mt.obj.guid)
	m.transports.mu.Unlock()
	m.RemoveFromMap(mt.obj)
}

// TransportCount returns the number of transports on the map.
func (m *Map) TransportCount() int {
	m.transports.mu.Lock()
	defer m.transports.mu.Unlock()
	return len(m.transports.byGUID)
}

// updateTransports advances every transport to the map's game time.
func (m *Map) updateTransports() {
	now := m.GameTime()
	for _, mt := range m.transports.list() {
		u := mt.t.Update(now)
		if m.transportEvents != nil {
			for _, ev := range u.Events {
				m.transportEvents.TransportEvent(m.ID(), mt.obj.guid, ev.EventID)
			}
		}
		if u.MapID != m.ID() {
			continue
		}
		if err := m.Relocate(mt.obj.guid, u.Position.Position); err != nil {
			slog.Warn("transport relocation failed", "map", m.ID(), "guid", mt.obj.guid, "error", err)
		}
	}
}

// removeLeavingTransports detaches transports whose path moved to another map
// and queues them for the manager.
func (m *Map) removeLeavingTransports() {
	for _, mt := range m.transports.list() {
		to := mt.t.MapID()
		if to == m.ID() {
			continue
		}
		m.removeTransport(mt)
		m.transports.mu.Lock()
		m.transports.transfers = append(m.transports.transfers, TransportTransfer{Transport: mt.t, FromMap: m.ID(), ToMap: to})
		m.transports.mu.Unlock()
		slog.Debug("transport left map", "map", m.ID(), "guid", mt.obj.guid, "to", to)
	}
}

// TakeTransportTransfers returns and clears the transports waiting to change map.
func (m *Map) TakeTransportTransfers() []TransportTransfer {
	m.transports.mu.Lock()
	defer m.transports.mu.Unlock()
	out := m.transports.transfers
	m.transports.transfers = nil
	return out
}
