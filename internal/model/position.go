package model

import "math"

// Lattice bounds shared by the whole world: 64 grids of 533.33 units around the origin.
const (
	MapSize     = 533.3333 * 64
	MapHalfSize = MapSize / 2
)

// Position представляет координаты в игровом мире.
// Value type, передаётся по значению (immutable).
type Position struct {
	X float32
	Y float32
	Z float32
	O float32 // orientation, radians
}

// NewPosition создаёт Position с указанными координатами.
func NewPosition(x, y, z, o float32) Position {
	return Position{X: x, Y: y, Z: z, O: NormalizeOrientation(o)}
}

// Distance2DSquared returns the squared distance on the XY plane.
func (p Position) Distance2DSquared(other Position) float64 {
	dx := float64(p.X - other.X)
	dy := float64(p.Y - other.Y)
	return dx*dx + dy*dy
}

// Distance3DSquared возвращает квадрат расстояния до другой точки (без sqrt для производительности).
func (p Position) Distance3DSquared(other Position) float64 {
	dz := float64(p.Z - other.Z)
	return p.Distance2DSquared(other) + dz*dz
}

// IsValid reports whether the position lies inside the map lattice and has finite coordinates.
func (p Position) IsValid() bool {
	return isFiniteInRange(p.X, MapHalfSize) && isFiniteInRange(p.Y, MapHalfSize) && isFiniteInRange(p.Z, MapSize)
}

func isFiniteInRange(v float32, limit float64) bool {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f >= -limit && f <= limit
}

// NormalizeOrientation wraps o into [0, 2π).
func NormalizeOrientation(o float32) float32 {
	if o < 0 {
		mod := float32(math.Mod(float64(-o), 2*math.Pi))
		if mod == 0 {
			return 0
		}
		return float32(2*math.Pi) - mod
	}
	return float32(math.Mod(float64(o), 2*math.Pi))
}
