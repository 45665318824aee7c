package transport

import (
	"time"

	"github.com/udisondev/worldcore/internal/model"
)

// Transport is a live moving object following a shared template.
// Its position is a pure function of the template and the time since PathStart.
type Transport struct {
	GUID      model.GUID
	Template  *Template
	PathStart time.Duration

	pos      Position
	lastPath time.Duration
	started  bool
}

// New creates a transport whose path time is zero at pathStart.
func New(guid model.GUID, tmpl *Template, pathStart time.Duration) *Transport {
	t := &Transport{GUID: guid, Template: tmpl, PathStart: pathStart}
	t.pos = tmpl.ComputePosition(0)
	return t
}

// Update is the result of advancing a transport.
type Update struct {
	Position
	// MapChanged is set when the transport moved onto a leg on another map.
	MapChanged bool
	Events     []Event
}

// Update evaluates the path at server time now.
func (t *Transport) Update(now time.Duration) Update {
	pathTime := now - t.PathStart
	if pathTime < 0 {
		pathTime = 0
	}
	prev := t.pos
	t.pos = t.Template.ComputePosition(pathTime)

	u := Update{Position: t.pos, MapChanged: t.pos.MapID != prev.MapID}
	if t.started {
		u.Events = t.Template.EventsBetween(t.lastPath, pathTime)
	}
	t.lastPath = pathTime
	t.started = true
	return u
}

// Position returns the last computed position.
func (t *Transport) Position() Position { return t.pos }

// MapID returns the map of the current leg.
func (t *Transport) MapID() uint32 { return t.pos.MapID }
