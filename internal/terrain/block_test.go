package terrain

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packCell packs a height (quantized to 8 units) and a movement mask.
func packCell(height int16, mask byte) uint16 {
	return uint16((height>>3)<<4) | uint16(mask)
}

func appendU16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func TestFlatBlock(t *testing.T) {
	b := &flatBlock{height: -500}

	assert.Equal(t, int32(-500), b.NearestZ(0, 0, 0))
	assert.Equal(t, int32(-500), b.NextHigherZ(7, 7, 1000))
	assert.Equal(t, MoveAll, b.MoveMask(3, 3, 0))
	assert.False(t, b.Detailed())
}

func TestComplexBlock(t *testing.T) {
	b := &complexBlock{}
	b.cells[0] = packCell(96, MoveAll)
	b.cells[1*BlockCellsY] = packCell(-104, MoveNorth)

	assert.Equal(t, int32(96), b.NearestZ(0, 0, 0))
	assert.Equal(t, int32(-104), b.NearestZ(1, 0, 0))
	assert.Equal(t, MoveNorth, b.MoveMask(1, 0, 0))
	assert.True(t, b.Detailed())
}

func multilayerData(first []uint16) []byte {
	data := []byte{BlockTypeMultilayer, byte(len(first))}
	for _, l := range first {
		data = appendU16(data, l)
	}
	for range BlockCells - 1 {
		data = append(data, 1)
		data = appendU16(data, packCell(0, MoveAll))
	}
	return data
}

func TestMultilayerBlock(t *testing.T) {
	data := multilayerData([]uint16{packCell(96, MoveAll), packCell(304, MoveNorth)})

	b, consumed, err := ParseBlock(data, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), consumed)

	tests := []struct {
		name     string
		z        int32
		nearest  int32
		higher   int32
		moveMask byte
	}{
		{"below both", 90, 96, 96, MoveAll},
		{"between", 280, 304, 304, MoveNorth},
		{"above both", 1000, 304, 304, MoveNorth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.nearest, b.NearestZ(0, 0, tt.z))
			assert.Equal(t, tt.higher, b.NextHigherZ(0, 0, tt.z))
			assert.Equal(t, tt.moveMask, b.MoveMask(0, 0, tt.z))
		})
	}
}

func TestParseBlockFlat(t *testing.T) {
	data := appendU16([]byte{BlockTypeFlat}, uint16(int16(150)))

	b, consumed, err := ParseBlock(data, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, consumed)
	assert.Equal(t, int32(150), b.NearestZ(0, 0, 0))
}

func TestParseBlockComplex(t *testing.T) {
	data := []byte{BlockTypeComplex}
	for range BlockCells {
		data = appendU16(data, packCell(48, MoveAll))
	}

	b, consumed, err := ParseBlock(data, 0)
	require.NoError(t, err)
	assert.Equal(t, 1+BlockCells*2, consumed)
	assert.Equal(t, int32(48), b.NearestZ(3, 3, 0))
}

func TestParseBlockErrors(t *testing.T) {
	_, _, err := ParseBlock([]byte{0xFF}, 0)
	assert.ErrorContains(t, err, "unknown block type")

	_, _, err = ParseBlock([]byte{BlockTypeComplex, 0, 0}, 0)
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = ParseBlock([]byte{BlockTypeMultilayer, 0}, 0)
	assert.ErrorContains(t, err, "invalid layer count")

	_, _, err = ParseBlock(nil, 0)
	assert.ErrorIs(t, err, ErrTruncated)
}
