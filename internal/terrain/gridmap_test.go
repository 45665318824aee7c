package terrain

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gridSpec struct {
	area   uint16
	liquid *float32
	// detail, when set, replaces block 0 with a complex block of this height at cell (2,3).
	detail *int16
	flat   int16
}

func buildGridMap(s gridSpec) []byte {
	b := []byte(gridMapMagic)
	b = binary.LittleEndian.AppendUint32(b, GridMapVersion)
	b = binary.LittleEndian.AppendUint16(b, s.area)
	var flags byte
	var level float32
	if s.liquid != nil {
		flags |= gridFlagLiquid
		level = *s.liquid
	}
	b = append(b, flags, 0)
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(level))

	for i := range GridBlocks {
		if i == 0 && s.detail != nil {
			b = append(b, BlockTypeComplex)
			for c := range BlockCells {
				h := s.flat
				if c == 2*BlockCellsY+3 {
					h = *s.detail
				}
				b = appendU16(b, packCell(h, MoveAll))
			}
			continue
		}
		b = append(b, BlockTypeFlat)
		b = appendU16(b, uint16(s.flat))
	}
	return b
}

func writeGridMap(t *testing.T, dir string, mapID uint32, gx, gy int, s gridSpec) {
	t.Helper()
	path := GridMapPath(dir, mapID, gx, gy)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buildGridMap(s), 0o644))
}

func TestGridMapPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "maps", "0571_32_07.map"), GridMapPath("data", 571, 32, 7))
}

func TestParseGridMap(t *testing.T) {
	level := float32(12.5)
	detail := int16(200)
	g, err := ParseGridMap(buildGridMap(gridSpec{area: 17, liquid: &level, detail: &detail, flat: 40}))
	require.NoError(t, err)

	assert.Equal(t, uint16(17), g.Area())
	lvl, ok := g.LiquidLevel()
	assert.True(t, ok)
	assert.Equal(t, level, lvl)

	assert.Equal(t, float32(200), g.Height(2, 3, 0))
	assert.Equal(t, float32(40), g.Height(2, 4, 0))
	assert.Equal(t, float32(40), g.Height(100, 100, 0))
}

func TestParseGridMapErrors(t *testing.T) {
	_, err := ParseGridMap([]byte("GM"))
	assert.ErrorIs(t, err, ErrTruncated)

	bad := buildGridMap(gridSpec{})
	copy(bad, "XXXX")
	_, err = ParseGridMap(bad)
	assert.ErrorIs(t, err, ErrBadMagic)

	old := buildGridMap(gridSpec{})
	binary.LittleEndian.PutUint32(old[4:], 99)
	_, err = ParseGridMap(old)
	assert.ErrorIs(t, err, ErrBadVersion)

	cut := buildGridMap(gridSpec{})
	_, err = ParseGridMap(cut[:len(cut)-1])
	assert.ErrorIs(t, err, ErrTruncated)
}
