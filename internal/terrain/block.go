package terrain

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Block provides heights and movement masks for 8x8 height cells.
type Block interface {
	// NearestZ returns the layer height closest to z at local cell (cx, cy).
	NearestZ(cx, cy int, z int32) int32
	// NextHigherZ returns the lowest layer >= z, or the highest layer if none is.
	NextHigherZ(cx, cy int, z int32) int32
	// MoveMask returns the movement mask of the layer closest to z.
	MoveMask(cx, cy int, z int32) byte
	// Detailed reports whether the block carries per-cell data.
	Detailed() bool
}

// unpackHeight extracts the height from a packed cell: bits[15:4] are height/8.
func unpackHeight(raw uint16) int32 {
	return int32(int16(raw&0xFFF0) >> 1)
}

// flatBlock: 1 byte type + int16 height.
type flatBlock struct {
	height int16
}

func (b *flatBlock) NearestZ(_, _ int, _ int32) int32    { return int32(b.height) }
func (b *flatBlock) NextHigherZ(_, _ int, _ int32) int32 { return int32(b.height) }
func (b *flatBlock) MoveMask(_, _ int, _ int32) byte     { return MoveAll }
func (b *flatBlock) Detailed() bool                      { return false }

// complexBlock: 1 byte type + 64 packed cells.
type complexBlock struct {
	cells [BlockCells]uint16
}

func (b *complexBlock) at(cx, cy int) uint16 {
	return b.cells[cx*BlockCellsY+cy]
}

func (b *complexBlock) NearestZ(cx, cy int, _ int32) int32 {
	return unpackHeight(b.at(cx, cy))
}

func (b *complexBlock) NextHigherZ(cx, cy int, _ int32) int32 {
	return unpackHeight(b.at(cx, cy))
}

func (b *complexBlock) MoveMask(cx, cy int, _ int32) byte {
	return byte(b.at(cx, cy) & 0x000F)
}

func (b *complexBlock) Detailed() bool { return true }

// multilayerBlock: 1 byte type, then per cell 1 byte layer count followed by
// that many packed cells.
type multilayerBlock struct {
	data    []byte
	offsets [BlockCells]int
}

func (b *multilayerBlock) layers(cx, cy int) []byte {
	off := b.offsets[cx*BlockCellsY+cy]
	n := int(b.data[off])
	return b.data[off+1 : off+1+n*2]
}

// closest returns the packed layer nearest to z.
func (b *multilayerBlock) closest(cx, cy int, z int32) uint16 {
	var best uint16
	bestDist := int64(math.MaxInt64)
	ls := b.layers(cx, cy)
	for i := 0; i < len(ls); i += 2 {
		raw := binary.LittleEndian.Uint16(ls[i:])
		dist := int64(unpackHeight(raw)) - int64(z)
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			best = raw
		}
	}
	return best
}

func (b *multilayerBlock) NearestZ(cx, cy int, z int32) int32 {
	return unpackHeight(b.closest(cx, cy, z))
}

func (b *multilayerBlock) NextHigherZ(cx, cy int, z int32) int32 {
	above := int32(math.MaxInt32)
	highest := int32(math.MinInt32)
	ls := b.layers(cx, cy)
	for i := 0; i < len(ls); i += 2 {
		h := unpackHeight(binary.LittleEndian.Uint16(ls[i:]))
		if h > highest {
			highest = h
		}
		if h >= z && h < above {
			above = h
		}
	}
	if above == math.MaxInt32 {
		return highest
	}
	return above
}

func (b *multilayerBlock) MoveMask(cx, cy int, z int32) byte {
	return byte(b.closest(cx, cy, z) & 0x000F)
}

func (b *multilayerBlock) Detailed() bool { return true }

// ParseBlock reads one block from data at offset.
// Returns the block and the number of bytes consumed.
func ParseBlock(data []byte, offset int) (Block, int, error) {
	if offset >= len(data) {
		return nil, 0, fmt.Errorf("parse block: offset %d beyond data length %d: %w", offset, len(data), ErrTruncated)
	}

	kind := data[offset]
	offset++

	switch kind {
	case BlockTypeFlat:
		if offset+2 > len(data) {
			return nil, 0, fmt.Errorf("parse flat block at %d: %w", offset, ErrTruncated)
		}
		return &flatBlock{height: int16(binary.LittleEndian.Uint16(data[offset:]))}, 3, nil

	case BlockTypeComplex:
		need := BlockCells * 2
		if offset+need > len(data) {
			return nil, 0, fmt.Errorf("parse complex block at %d: %w", offset, ErrTruncated)
		}
		b := &complexBlock{}
		for i := range BlockCells {
			b.cells[i] = binary.LittleEndian.Uint16(data[offset+i*2:])
		}
		return b, 1 + need, nil

	case BlockTypeMultilayer:
		start := offset
		var offsets [BlockCells]int
		for i := range BlockCells {
			if offset >= len(data) {
				return nil, 0, fmt.Errorf("parse multilayer block cell %d: %w", i, ErrTruncated)
			}
			offsets[i] = offset - start
			n := int(data[offset])
			if n == 0 || n > 125 {
				return nil, 0, fmt.Errorf("parse multilayer block: invalid layer count %d at cell %d", n, i)
			}
			offset += 1 + n*2
		}
		if offset > len(data) {
			return nil, 0, fmt.Errorf("parse multilayer block: %w", ErrTruncated)
		}
		buf := make([]byte, offset-start)
		copy(buf, data[start:offset])
		return &multilayerBlock{data: buf, offsets: offsets}, 1 + (offset - start), nil

	default:
		return nil, 0, fmt.Errorf("parse block: unknown block type 0x%02X at offset %d", kind, offset-1)
	}
}
