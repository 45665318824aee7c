package cell

import (
	"log/slog"
	"math"
)

// Visitor receives every cell touched by a visit.
type Visitor func(Cell)

// Visit calls fn for every cell a circle of radius around (x, y) touches.
// The standing cell is always visited first when the rectangle path is used.
func Visit(standing Cell, x, y, radius float32, fn Visitor) {
	if !standing.Coord.IsValid() {
		slog.Debug("cell visit skipped, invalid standing cell",
			"cellX", standing.Coord.X,
			"cellY", standing.Coord.Y)
		return
	}

	if radius <= 0 {
		fn(standing)
		return
	}
	if radius > MaxVisibilityDistance {
		radius = MaxVisibilityDistance
	}

	area := CalculateCellArea(x, y, radius)
	if area.IsSingle() {
		fn(standing)
		return
	}

	if area.High.X > area.Low.X+smallAreaSpan && area.High.Y > area.Low.Y+smallAreaSpan {
		VisitCircle(area.Low, area.High, standing.NoCreate, fn)
		return
	}

	fn(standing)
	VisitAreaExcluding(area, standing.Coord, standing.NoCreate, fn)
}

// VisitAreaExcluding visits every cell of area except skip.
func VisitAreaExcluding(area Area, skip CellCoord, noCreate bool, fn Visitor) {
	for x := area.Low.X; x <= area.High.X; x++ {
		for y := area.Low.Y; y <= area.High.Y; y++ {
			c := CellCoord{X: x, Y: y}
			if c == skip {
				continue
			}
			fn(Cell{Coord: c, NoCreate: noCreate})
		}
	}
}

// VisitCircle fills a circumscribed octagon over [begin, end]:
// a central strip of constant width, then two trapezoid wings
// losing one row at each end per step outward.
func VisitCircle(begin, end CellCoord, noCreate bool, fn Visitor) {
	// float32 arithmetic with explicit rounding keeps the strip width identical across platforms.
	span := float32(end.X - begin.X)
	xShift := int(math.Ceil(float64(float32(span*float32(0.3)) - 0.5)))

	xStart := begin.X + xShift
	xEnd := end.X - xShift

	for x := xStart; x <= xEnd; x++ {
		for y := begin.Y; y <= end.Y; y++ {
			fn(Cell{Coord: CellCoord{X: x, Y: y}, NoCreate: noCreate})
		}
	}

	// strip already covers the whole area
	if xShift == 0 {
		return
	}

	yStart := end.Y
	yEnd := begin.Y
	for step := 1; step <= xStart-begin.X; step++ {
		yEnd++
		yStart--
		for y := yStart; y >= yEnd; y-- {
			fn(Cell{Coord: CellCoord{X: xStart - step, Y: y}, NoCreate: noCreate})
			fn(Cell{Coord: CellCoord{X: xEnd + step, Y: y}, NoCreate: noCreate})
		}
	}
}
