package cell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCellCoord_Origin(t *testing.T) {
	assert.Equal(t, CellCoord{X: CenterCellID, Y: CenterCellID}, ComputeCellCoord(0, 0))
	assert.Equal(t, GridCoord{X: CenterGridID, Y: CenterGridID}, ComputeGridCoord(0, 0))
}

func TestComputeCellCoord_GridInvariant(t *testing.T) {
	// offsets chosen to stay clear of exact cell boundaries
	for i := range 200 {
		x := float32(-16500 + float64(i)*163.37)
		for j := range 200 {
			y := float32(-16500 + float64(j)*161.91)

			c := ComputeCellCoord(x, y)
			g := ComputeGridCoord(x, y)
			if !c.IsValid() {
				t.Fatalf("ComputeCellCoord(%v, %v) = %+v; want valid", x, y, c)
			}

			if c.X/MaxCells != g.X || c.Y/MaxCells != g.Y {
				t.Fatalf("cell %+v not inside grid %+v for (%v, %v)", c, g, x, y)
			}
			offX, offY := c.X-g.X*MaxCells, c.Y-g.Y*MaxCells
			if offX < 0 || offX >= MaxCells || offY < 0 || offY >= MaxCells {
				t.Fatalf("cell offset (%d, %d) out of range", offX, offY)
			}
			if again := ComputeCellCoord(x, y); again != c {
				t.Fatalf("ComputeCellCoord not deterministic: %+v vs %+v", c, again)
			}
		}
	}
}

func TestComputeCellCoord_OffMapInvalid(t *testing.T) {
	tests := []struct {
		name string
		x, y float32
	}{
		{"east", MapHalfSize + 100, 0},
		{"west", -MapHalfSize - 100, 0},
		{"north", 0, MapHalfSize + 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ComputeCellCoord(tt.x, tt.y)
			assert.False(t, c.IsValid())
			assert.True(t, c.Normalize().IsValid())
		})
	}
}

func TestComputeCellCoordOffset(t *testing.T) {
	c, ox, oy := ComputeCellCoordOffset(CellSize/4, CellSize/2)

	assert.Equal(t, CellCoord{X: CenterCellID, Y: CenterCellID}, c)
	assert.InDelta(t, 0.25, ox, 1e-4)
	assert.InDelta(t, 0.5, oy, 1e-4)
}

func TestGridCoord_ID(t *testing.T) {
	g := GridCoord{X: 12, Y: 40}

	assert.Equal(t, uint32(40*MaxGrids+12), g.ID())
	assert.Equal(t, g, GridCoordFromID(g.ID()))
}

func TestCellCoord_Saturating(t *testing.T) {
	c := CellCoord{X: 2, Y: TotalCells - 2}

	assert.Equal(t, 0, c.DecX(5).X)
	assert.Equal(t, TotalCells-1, c.IncY(5).Y)
	assert.Equal(t, 7, c.IncX(5).X)
	assert.Equal(t, TotalCells-4, c.DecY(2).Y)
}

func TestCalculateCellArea_NonPositiveRadius(t *testing.T) {
	positions := [][2]float32{{0, 0}, {1234.5, -987.25}, {-15000, 15000}, {MapHalfSize + 50, 0}}

	for _, p := range positions {
		for _, r := range []float32{0, -1, -1000} {
			area := CalculateCellArea(p[0], p[1], r)
			want := ComputeCellCoord(p[0], p[1]).Normalize()

			assert.True(t, area.IsSingle(), "radius %v at %v", r, p)
			assert.Equal(t, want, area.Low)
			assert.Equal(t, 1, area.Count())
		}
	}
}

func TestCalculateCellArea_ClampedToLattice(t *testing.T) {
	area := CalculateCellArea(0, 0, MapSize*4)

	assert.Equal(t, CellCoord{X: 0, Y: 0}, area.Low)
	assert.Equal(t, CellCoord{X: TotalCells - 1, Y: TotalCells - 1}, area.High)
}

func TestGridCoord_CellBounds(t *testing.T) {
	low, high := GridCoord{X: 3, Y: 5}.CellBounds()

	assert.Equal(t, CellCoord{X: 24, Y: 40}, low)
	assert.Equal(t, CellCoord{X: 32, Y: 48}, high)
}
