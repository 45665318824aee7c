package terrain

import "github.com/udisondev/worldcore/internal/cell"

// Grid heightmap layout. A grid is split into GridBlocks×GridBlocks blocks,
// each block into BlockCellsX×BlockCellsY height cells.
const (
	GridBlocksX    = 16
	GridBlocksY    = 16
	GridBlocks     = GridBlocksX * GridBlocksY // 256
	BlockCellsX    = 8
	BlockCellsY    = 8
	BlockCells     = BlockCellsX * BlockCellsY // 64
	GridCellsX     = GridBlocksX * BlockCellsX // 128
	GridCellsY     = GridBlocksY * BlockCellsY // 128
	HeightCellSize = cell.GridSize / GridCellsX
)

// Movement mask bits stored in the low nibble of every packed height cell.
const (
	MoveEast  byte = 1 << 0
	MoveWest  byte = 1 << 1
	MoveSouth byte = 1 << 2
	MoveNorth byte = 1 << 3
	MoveAll   byte = 0x0F
)

// Block type identifiers in the grid heightmap format.
const (
	BlockTypeFlat       byte = 0x00
	BlockTypeComplex    byte = 0x01
	BlockTypeMultilayer byte = 0x02
)

// Heightmap file header.
const (
	gridMapMagic      = "GMAP"
	GridMapVersion    = uint32(1)
	gridMapHeaderSize = 16

	gridFlagLiquid byte = 1 << 0
)

// Navigation tile header.
const (
	MMapMagic      = uint32(0x4D4D4150) // 'MMAP'
	MMapVersion    = uint32(16)
	NavMeshVersion = uint32(7)
	TileHeaderSize = 20
)

// InvalidHeight is returned by height queries over a grid without data.
const InvalidHeight = float32(-200000)

// NoParent marks a terrain that has no parent map.
const NoParent = int32(-1)
