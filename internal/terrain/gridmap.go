package terrain

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// GridMap holds the heightmap of one grid.
//
// File layout (little-endian):
//
//	magic "GMAP" | version u32 | area u16 | flags u8 | pad u8 | liquid level f32
//	GridBlocks blocks, row-major by block X
type GridMap struct {
	area        uint16
	hasLiquid   bool
	liquidLevel float32
	blocks      [GridBlocks]Block
}

// GridMapPath returns the heightmap file path for a grid.
func GridMapPath(dir string, mapID uint32, gx, gy int) string {
	return filepath.Join(dir, "maps", fmt.Sprintf("%04d_%02d_%02d.map", mapID, gx, gy))
}

// ParseGridMap decodes a heightmap.
func ParseGridMap(data []byte) (*GridMap, error) {
	if len(data) < gridMapHeaderSize {
		return nil, fmt.Errorf("parse grid map header: %w", ErrTruncated)
	}
	if string(data[0:4]) != gridMapMagic {
		return nil, fmt.Errorf("parse grid map: %w", ErrBadMagic)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != GridMapVersion {
		return nil, fmt.Errorf("parse grid map version %d: %w", v, ErrBadVersion)
	}

	g := &GridMap{
		area:        binary.LittleEndian.Uint16(data[8:10]),
		hasLiquid:   data[10]&gridFlagLiquid != 0,
		liquidLevel: math.Float32frombits(binary.LittleEndian.Uint32(data[12:16])),
	}

	offset := gridMapHeaderSize
	for i := range GridBlocks {
		b, n, err := ParseBlock(data, offset)
		if err != nil {
			return nil, fmt.Errorf("parse grid map block %d: %w", i, err)
		}
		g.blocks[i] = b
		offset += n
	}
	return g, nil
}

// LoadGridMap reads and decodes a heightmap file.
func LoadGridMap(path string) (*GridMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid map: %w", err)
	}
	return ParseGridMap(data)
}

func (g *GridMap) block(lx, ly int) (Block, int, int) {
	return g.blocks[(lx/BlockCellsX)*GridBlocksY+ly/BlockCellsY], lx % BlockCellsX, ly % BlockCellsY
}

// Height returns the surface height nearest to z at local height cell (lx, ly).
func (g *GridMap) Height(lx, ly int, z float32) float32 {
	b, cx, cy := g.block(lx, ly)
	return float32(b.NearestZ(cx, cy, int32(z)))
}

// CeilingHeight returns the lowest surface at or above z.
func (g *GridMap) CeilingHeight(lx, ly int, z float32) float32 {
	b, cx, cy := g.block(lx, ly)
	return float32(b.NextHigherZ(cx, cy, int32(z)))
}

// MoveMask returns the movement mask at local height cell (lx, ly).
func (g *GridMap) MoveMask(lx, ly int, z float32) byte {
	b, cx, cy := g.block(lx, ly)
	return b.MoveMask(cx, cy, int32(z))
}

// Area returns the area id of the whole grid.
func (g *GridMap) Area() uint16 { return g.area }

// LiquidLevel returns the liquid surface level, if the grid has liquid.
func (g *GridMap) LiquidLevel() (float32, bool) {
	return g.liquidLevel, g.hasLiquid
}
