package transport

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// samplesPerSegment controls arc-length table resolution.
const samplesPerSegment = 24

// Spline is a Catmull-Rom curve through a leg's nodes, parameterized by arc length.
type Spline struct {
	points []mgl64.Vec3
	// nodeDist[i] is the arc length from the first point to point i.
	nodeDist []float64
	// samples[s][k] is the arc length from point s to parameter k/samplesPerSegment.
	samples [][samplesPerSegment + 1]float64
}

// NewSpline fits a curve through points. Endpoints are duplicated as outer control points
// so the curve passes through every node.
func NewSpline(points []mgl64.Vec3) (*Spline, error) {
	if len(points) < 2 {
		return nil, ErrTooFewNodes
	}
	s := &Spline{
		points:   append([]mgl64.Vec3(nil), points...),
		nodeDist: make([]float64, len(points)),
		samples:  make([][samplesPerSegment + 1]float64, len(points)-1),
	}

	total := 0.0
	for seg := range len(points) - 1 {
		prev := s.evaluate(seg, 0)
		for k := 1; k <= samplesPerSegment; k++ {
			cur := s.evaluate(seg, float64(k)/samplesPerSegment)
			s.samples[seg][k] = s.samples[seg][k-1] + cur.Sub(prev).Len()
			prev = cur
		}
		total += s.samples[seg][samplesPerSegment]
		s.nodeDist[seg+1] = total
	}
	return s, nil
}

func (s *Spline) control(i int) mgl64.Vec3 {
	switch {
	case i < 0:
		return s.points[0]
	case i >= len(s.points):
		return s.points[len(s.points)-1]
	}
	return s.points[i]
}

// evaluate returns the curve point on segment seg at local parameter u in [0,1].
// A Catmull-Rom segment is evaluated as its equivalent cubic Bezier.
func (s *Spline) evaluate(seg int, u float64) mgl64.Vec3 {
	p0, p1, p2, p3 := s.control(seg-1), s.control(seg), s.control(seg+1), s.control(seg+2)
	c1 := p1.Add(p2.Sub(p0).Mul(1.0 / 6))
	c2 := p2.Sub(p3.Sub(p1).Mul(1.0 / 6))
	return mgl64.CubicBezierCurve3D(u, p1, c1, c2, p2)
}

// Length returns the total arc length.
func (s *Spline) Length() float64 {
	return s.nodeDist[len(s.nodeDist)-1]
}

// NodeDistance returns the arc length from the first node to node i.
func (s *Spline) NodeDistance(i int) float64 {
	return s.nodeDist[i]
}

// NodeCount returns the number of nodes.
func (s *Spline) NodeCount() int { return len(s.points) }

// locate converts an arc length into a segment and local parameter.
func (s *Spline) locate(dist float64) (int, float64) {
	if dist <= 0 {
		return 0, 0
	}
	if dist >= s.Length() {
		return len(s.samples) - 1, 1
	}
	seg := sort.SearchFloat64s(s.nodeDist, dist) - 1
	if seg < 0 {
		seg = 0
	}
	local := dist - s.nodeDist[seg]
	tbl := &s.samples[seg]
	k := sort.Search(samplesPerSegment+1, func(i int) bool { return tbl[i] >= local })
	if k == 0 {
		return seg, 0
	}
	span := tbl[k] - tbl[k-1]
	frac := 0.0
	if span > 0 {
		frac = (local - tbl[k-1]) / span
	}
	return seg, (float64(k-1) + frac) / samplesPerSegment
}

// PointAt returns the point at arc length dist and the direction of travel there.
func (s *Spline) PointAt(dist float64) (mgl64.Vec3, mgl64.Vec3) {
	seg, u := s.locate(dist)
	p := s.evaluate(seg, u)

	const eps = 1e-3
	a, b := u-eps, u+eps
	if a < 0 {
		a = 0
	}
	if b > 1 {
		b = 1
	}
	dir := s.evaluate(seg, b).Sub(s.evaluate(seg, a))
	return p, dir
}
