package cell

// GridCoord addresses a grid on the map lattice.
type GridCoord struct {
	X, Y int
}

// CellCoord addresses a cell on the map lattice.
type CellCoord struct {
	X, Y int
}

// IsValid reports whether the coordinate lies inside the lattice.
func (c GridCoord) IsValid() bool {
	return c.X >= 0 && c.X < MaxGrids && c.Y >= 0 && c.Y < MaxGrids
}

// Normalize clamps the coordinate into the lattice.
func (c GridCoord) Normalize() GridCoord {
	return GridCoord{X: clamp(c.X, MaxGrids), Y: clamp(c.Y, MaxGrids)}
}

// ID returns y*MaxGrids+x.
func (c GridCoord) ID() uint32 {
	return uint32(c.Y*MaxGrids + c.X)
}

// GridCoordFromID is the inverse of GridCoord.ID.
func GridCoordFromID(id uint32) GridCoord {
	return GridCoord{X: int(id % MaxGrids), Y: int(id / MaxGrids)}
}

// CellBounds returns the first cell of the grid and the cell one past its last.
func (c GridCoord) CellBounds() (low, high CellCoord) {
	low = CellCoord{X: c.X * MaxCells, Y: c.Y * MaxCells}
	high = CellCoord{X: low.X + MaxCells, Y: low.Y + MaxCells}
	return low, high
}

// IsValid reports whether the coordinate lies inside the lattice.
func (c CellCoord) IsValid() bool {
	return c.X >= 0 && c.X < TotalCells && c.Y >= 0 && c.Y < TotalCells
}

// Normalize clamps the coordinate into the lattice.
func (c CellCoord) Normalize() CellCoord {
	return CellCoord{X: clamp(c.X, TotalCells), Y: clamp(c.Y, TotalCells)}
}

// ID returns y*TotalCells+x.
func (c CellCoord) ID() uint32 {
	return uint32(c.Y*TotalCells + c.X)
}

// Grid returns the grid containing the cell.
func (c CellCoord) Grid() GridCoord {
	return GridCoord{X: c.X / MaxCells, Y: c.Y / MaxCells}
}

// IncX moves n cells right, saturating at the lattice edge.
func (c CellCoord) IncX(n int) CellCoord {
	c.X = min(c.X+n, TotalCells-1)
	return c
}

// DecX moves n cells left, saturating at zero.
func (c CellCoord) DecX(n int) CellCoord {
	c.X = max(c.X-n, 0)
	return c
}

// IncY moves n cells up, saturating at the lattice edge.
func (c CellCoord) IncY(n int) CellCoord {
	c.Y = min(c.Y+n, TotalCells-1)
	return c
}

// DecY moves n cells down, saturating at zero.
func (c CellCoord) DecY(n int) CellCoord {
	c.Y = max(c.Y-n, 0)
	return c
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v >= limit {
		return limit - 1
	}
	return v
}

// compute maps a world coordinate pair onto a lattice of the given cell size.
// Done in float64 so the result matches SQL-side calculations over the same data.
func compute(x, y float32, centerOffset, size float64, centerVal int) (int, int) {
	xOffset := (float64(x) - centerOffset) / size
	yOffset := (float64(y) - centerOffset) / size

	xVal := int(xOffset + float64(centerVal) + 0.5)
	yVal := int(yOffset + float64(centerVal) + 0.5)
	return xVal, yVal
}

// ComputeGridCoord returns the grid containing (x, y). The result may be invalid for off-map positions.
func ComputeGridCoord(x, y float32) GridCoord {
	gx, gy := compute(x, y, CenterGridOffset, GridSize, CenterGridID)
	return GridCoord{X: gx, Y: gy}
}

// ComputeCellCoord returns the cell containing (x, y). The result may be invalid for off-map positions.
func ComputeCellCoord(x, y float32) CellCoord {
	cx, cy := compute(x, y, CenterCellOffset, CellSize, CenterCellID)
	return CellCoord{X: cx, Y: cy}
}

// ComputeCellCoordOffset returns the cell containing (x, y) and the position inside it, in cell units [0,1).
func ComputeCellCoordOffset(x, y float32) (CellCoord, float32, float32) {
	xOffset := (float64(x)-CenterCellOffset)/CellSize + CenterCellID + 0.5
	yOffset := (float64(y)-CenterCellOffset)/CellSize + CenterCellID + 0.5

	cx, cy := int(xOffset), int(yOffset)
	return CellCoord{X: cx, Y: cy}, float32(xOffset - float64(cx)), float32(yOffset - float64(cy))
}

// Area is an inclusive range of cells.
type Area struct {
	Low  CellCoord
	High CellCoord
}

// IsSingle reports whether the area covers exactly one cell.
func (a Area) IsSingle() bool {
	return a.Low == a.High
}

// Contains reports whether c lies inside the area.
func (a Area) Contains(c CellCoord) bool {
	return c.X >= a.Low.X && c.X <= a.High.X && c.Y >= a.Low.Y && c.Y <= a.High.Y
}

// Count returns the number of cells covered.
func (a Area) Count() int {
	return (a.High.X - a.Low.X + 1) * (a.High.Y - a.Low.Y + 1)
}

// CalculateCellArea returns the cells touched by a circle of the given radius, clamped to the lattice.
// A non-positive radius yields the single containing cell.
func CalculateCellArea(x, y, radius float32) Area {
	if radius <= 0 {
		center := ComputeCellCoord(x, y).Normalize()
		return Area{Low: center, High: center}
	}
	if radius > MapSize {
		radius = MapSize
	}

	return Area{
		Low:  ComputeCellCoord(x-radius, y-radius).Normalize(),
		High: ComputeCellCoord(x+radius, y+radius).Normalize(),
	}
}
