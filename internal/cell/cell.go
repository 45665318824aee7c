package cell

// Cell is a lattice cell plus visit flags.
// NoCreate means the cell is visited only if its grid is already loaded.
type Cell struct {
	Coord    CellCoord
	NoCreate bool
}

// NewCell returns the cell containing (x, y).
func NewCell(x, y float32) Cell {
	return Cell{Coord: ComputeCellCoord(x, y)}
}

// At wraps a coordinate.
func At(c CellCoord) Cell {
	return Cell{Coord: c}
}

// GridX, GridY возвращают координаты грида ячейки.
// CellX, CellY возвращают смещение ячейки внутри её грида.
func (c Cell) GridX() int { return c.Coord.X / MaxCells }
func (c Cell) GridY() int { return c.Coord.Y / MaxCells }
func (c Cell) CellX() int { return c.Coord.X % MaxCells }
func (c Cell) CellY() int { return c.Coord.Y % MaxCells }

// GridCoord returns the grid the cell belongs to.
func (c Cell) GridCoord() GridCoord {
	return c.Coord.Grid()
}

// DiffCell reports whether other is a different cell.
func (c Cell) DiffCell(other Cell) bool {
	return c.Coord != other.Coord
}

// DiffGrid reports whether other lies in a different grid.
func (c Cell) DiffGrid(other Cell) bool {
	return c.GridCoord() != other.GridCoord()
}

// WithNoCreate returns a copy with the NoCreate flag set.
func (c Cell) WithNoCreate() Cell {
	c.NoCreate = true
	return c
}
