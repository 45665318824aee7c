package cell

// Lattice constants. A map is MaxGrids×MaxGrids grids, each grid MaxCells×MaxCells cells.
const (
	MaxGrids = 64
	MaxCells = 8

	GridSize = 533.3333
	CellSize = GridSize / MaxCells

	// TotalCells is the number of cells along one side of the map.
	TotalCells = MaxGrids * MaxCells

	CenterGridID = MaxGrids / 2
	CenterCellID = TotalCells / 2

	CenterGridOffset = GridSize / 2
	CenterCellOffset = CellSize / 2

	MapSize     = GridSize * MaxGrids
	MapHalfSize = MapSize / 2

	// MaxVisibilityDistance caps every radius query.
	MaxVisibilityDistance = GridSize
)

// smallAreaSpan: rectangles whose both sides exceed this many cells use the octagon fill.
const smallAreaSpan = 4
