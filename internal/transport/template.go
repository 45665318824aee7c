package transport

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/udisondev/worldcore/internal/model"
)

// NodeFlags marks special path nodes.
type NodeFlags uint8

const (
	// NodeTeleport starts a new leg at this node.
	NodeTeleport NodeFlags = 1 << iota
	// NodeStop pauses the transport at this node for its Delay.
	NodeStop
)

// Node is one point of a transport path.
type Node struct {
	MapID            uint32
	X, Y, Z          float64
	Flags            NodeFlags
	Delay            time.Duration
	ArrivalEventID   uint32
	DepartureEventID uint32
}

// State of a transport at a point in path time.
type State uint8

const (
	StateMoving State = iota
	StateWaiting
)

func (s State) String() string {
	if s == StateWaiting {
		return "waiting"
	}
	return "moving"
}

// Segment is a pause-delimited run of a leg. Times are relative to the leg start.
type Segment struct {
	Start     time.Duration
	MoveTime  time.Duration
	Delay     time.Duration
	StartDist float64
	EndDist   float64

	restStart bool
	restEnd   bool
}

// End returns the leg time at which the segment (including its pause) ends.
func (s Segment) End() time.Duration { return s.Start + s.MoveTime + s.Delay }

// Leg is a maximal same-map run of the path.
type Leg struct {
	MapID    uint32
	Start    time.Duration
	Duration time.Duration
	Spline   *Spline
	Segments []Segment
}

// Event fires at an absolute path time.
type Event struct {
	Time    time.Duration
	EventID uint32
}

// Template is the precomputed, read-only motion schedule of one transport entry.
type Template struct {
	Entry     uint32
	Legs      []Leg
	Events    []Event
	TotalTime time.Duration
	MapIDs    []uint32

	speed     float64
	accel     float64
	accelDist float64
}

// BuildTemplate splits nodes into legs, fits a spline per leg and computes segment timing.
// speed is in units per second, accel in units per second squared (0 = instant).
func BuildTemplate(entry uint32, nodes []Node, speed, accel float64) (*Template, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("build transport %d: %w", entry, ErrInvalidSpeed)
	}
	t := &Template{Entry: entry, speed: speed}
	if accel > 0 {
		t.accel = accel
		t.accelDist = speed * speed / (2 * accel)
	}

	seen := make(map[uint32]bool)
	var elapsed time.Duration
	for _, run := range splitLegs(nodes) {
		leg, err := t.buildLeg(run, elapsed)
		if err != nil {
			return nil, fmt.Errorf("build transport %d: %w", entry, err)
		}
		t.addEvents(run, leg)
		elapsed += leg.Duration
		t.Legs = append(t.Legs, leg)
		if !seen[leg.MapID] {
			seen[leg.MapID] = true
			t.MapIDs = append(t.MapIDs, leg.MapID)
		}
	}
	if len(t.Legs) == 0 {
		return nil, fmt.Errorf("build transport %d: %w", entry, ErrTooFewNodes)
	}
	if elapsed <= 0 {
		return nil, fmt.Errorf("build transport %d: %w", entry, ErrEmptyPath)
	}
	t.TotalTime = elapsed
	return t, nil
}

// splitLegs cuts the node list at teleport flags and map changes.
func splitLegs(nodes []Node) [][]Node {
	var legs [][]Node
	start := 0
	for i := 1; i <= len(nodes); i++ {
		if i == len(nodes) || nodes[i].Flags&NodeTeleport != 0 || nodes[i].MapID != nodes[i-1].MapID {
			legs = append(legs, nodes[start:i])
			start = i
		}
	}
	return legs
}

func (t *Template) buildLeg(nodes []Node, start time.Duration) (Leg, error) {
	points := make([]mgl64.Vec3, len(nodes))
	for i, n := range nodes {
		points[i] = mgl64.Vec3{n.X, n.Y, n.Z}
	}
	spline, err := NewSpline(points)
	if err != nil {
		return Leg{}, fmt.Errorf("leg on map %d: %w", nodes[0].MapID, err)
	}

	leg := Leg{MapID: nodes[0].MapID, Start: start, Spline: spline}
	var legTime time.Duration
	segStart := 0
	for i := 1; i < len(nodes); i++ {
		stop := nodes[i].Flags&NodeStop != 0
		if !stop && i != len(nodes)-1 {
			continue
		}
		seg := Segment{
			Start:     legTime,
			StartDist: spline.NodeDistance(segStart),
			EndDist:   spline.NodeDistance(i),
			restStart: nodes[segStart].Flags&NodeStop != 0,
			restEnd:   stop,
		}
		seg.MoveTime = t.moveTime(seg.EndDist-seg.StartDist, seg.restStart, seg.restEnd)
		if stop {
			seg.Delay = nodes[i].Delay
		}
		legTime = seg.End()
		leg.Segments = append(leg.Segments, seg)
		segStart = i
	}
	leg.Duration = legTime
	return leg, nil
}

// addEvents records arrival and departure events of every node in absolute path time.
func (t *Template) addEvents(nodes []Node, leg Leg) {
	for i, n := range nodes {
		if n.ArrivalEventID == 0 && n.DepartureEventID == 0 {
			continue
		}
		arrival, departure := t.nodeTimes(leg, i)
		if n.ArrivalEventID != 0 {
			t.Events = append(t.Events, Event{Time: leg.Start + arrival, EventID: n.ArrivalEventID})
		}
		if n.DepartureEventID != 0 {
			t.Events = append(t.Events, Event{Time: leg.Start + departure, EventID: n.DepartureEventID})
		}
	}
}

// nodeTimes returns leg-relative arrival and departure times of node i.
func (t *Template) nodeTimes(leg Leg, i int) (time.Duration, time.Duration) {
	dist := leg.Spline.NodeDistance(i)
	for _, seg := range leg.Segments {
		if i == 0 && seg.StartDist == dist {
			return seg.Start, seg.Start
		}
		if dist <= seg.EndDist {
			arrival := seg.Start + t.timeAtDistance(seg, dist-seg.StartDist)
			if dist == seg.EndDist {
				return arrival, arrival + seg.Delay
			}
			return arrival, arrival
		}
	}
	return leg.Duration, leg.Duration
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// moveTime is the time needed to cover d starting and ending at rest or at cruise speed.
func (t *Template) moveTime(d float64, restStart, restEnd bool) time.Duration {
	if d <= 0 {
		return 0
	}
	if t.accel <= 0 {
		return seconds(d / t.speed)
	}
	switch {
	case restStart && restEnd:
		if t.accelDist >= d*0.5 {
			return seconds(2 * math.Sqrt(d/t.accel))
		}
		return seconds((d-2*t.accelDist)/t.speed + 2*t.speed/t.accel)
	case restStart || restEnd:
		if t.accelDist >= d {
			return seconds(math.Sqrt(2 * d / t.accel))
		}
		return seconds((d-t.accelDist)/t.speed + t.speed/t.accel)
	default:
		return seconds(d / t.speed)
	}
}

// accelDistance is the distance covered after el seconds of accelerating from rest
// towards cruise speed over at most d.
func (t *Template) accelDistance(el, d float64) float64 {
	ta := t.speed / t.accel
	var dist float64
	if el < ta {
		dist = 0.5 * t.accel * el * el
	} else {
		dist = t.accelDist + t.speed*(el-ta)
	}
	return math.Min(dist, d)
}

// distanceAt is the closed-form inverse of moveTime: distance covered el into the segment.
func (t *Template) distanceAt(seg Segment, el time.Duration) float64 {
	d := seg.EndDist - seg.StartDist
	if el <= 0 || d <= 0 {
		return 0
	}
	if el >= seg.MoveTime {
		return d
	}
	e := el.Seconds()
	if t.accel <= 0 {
		return math.Min(t.speed*e, d)
	}
	total := seg.MoveTime.Seconds()
	switch {
	case seg.restStart && seg.restEnd:
		half := total * 0.5
		if t.accelDist >= d*0.5 {
			if e <= half {
				return 0.5 * t.accel * e * e
			}
			r := total - e
			return d - 0.5*t.accel*r*r
		}
		ta := t.speed / t.accel
		switch {
		case e < ta:
			return 0.5 * t.accel * e * e
		case e < total-ta:
			return t.accelDist + t.speed*(e-ta)
		default:
			r := total - e
			return d - 0.5*t.accel*r*r
		}
	case seg.restStart:
		return t.accelDistance(e, d)
	case seg.restEnd:
		return d - t.accelDistance(total-e, d)
	default:
		return math.Min(t.speed*e, d)
	}
}

// timeAtDistance finds the time within seg at which dist has been covered.
func (t *Template) timeAtDistance(seg Segment, dist float64) time.Duration {
	lo, hi := time.Duration(0), seg.MoveTime
	for lo < hi {
		mid := lo + (hi-lo)/2
		if t.distanceAt(seg, mid) < dist {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Position is the result of a path evaluation.
type Position struct {
	model.Position
	MapID uint32
	State State
	Leg   int
}

// ComputePosition evaluates the path at path time tm (wrapped modulo the total time).
func (t *Template) ComputePosition(tm time.Duration) Position {
	tm %= t.TotalTime
	if tm < 0 {
		tm += t.TotalTime
	}

	li := len(t.Legs) - 1
	for i, leg := range t.Legs {
		if tm < leg.Start+leg.Duration {
			li = i
			break
		}
	}
	leg := t.Legs[li]
	lt := tm - leg.Start

	dist := leg.Spline.Length()
	state := StateMoving
	for _, seg := range leg.Segments {
		moveEnd := seg.Start + seg.MoveTime
		if lt < moveEnd {
			dist = seg.StartDist + t.distanceAt(seg, lt-seg.Start)
			break
		}
		if lt < seg.End() {
			dist = seg.EndDist
			state = StateWaiting
			break
		}
	}

	p, dir := leg.Spline.PointAt(dist)
	o := float32(math.Atan2(dir.Y(), dir.X()) + math.Pi)
	return Position{
		Position: model.NewPosition(float32(p.X()), float32(p.Y()), float32(p.Z()), o),
		MapID:    leg.MapID,
		State:    state,
		Leg:      li,
	}
}

// LegAt returns the leg index active at path time tm.
func (t *Template) LegAt(tm time.Duration) int {
	return t.ComputePosition(tm).Leg
}

// EventsBetween returns events with from < Time <= to, accounting for wrap-around.
func (t *Template) EventsBetween(from, to time.Duration) []Event {
	if to <= from {
		return nil
	}
	if to-from >= t.TotalTime {
		return append([]Event(nil), t.Events...)
	}
	f := from % t.TotalTime
	e := f + (to - from)
	var out []Event
	for _, ev := range t.Events {
		if (ev.Time > f && ev.Time <= e) || (ev.Time+t.TotalTime > f && ev.Time+t.TotalTime <= e) {
			out = append(out, ev)
		}
	}
	return out
}
