package terrain

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// TileHeader precedes every navigation tile.
type TileHeader struct {
	NavMeshVersion uint32
	Magic          uint32
	Version        uint32
	Size           uint32
	UsesLiquids    bool
}

// Tile is a navigation mesh tile. The payload is opaque to the map core.
type Tile struct {
	Header TileHeader
	Data   []byte
}

// TilePath returns the navigation tile file path for a grid.
func TilePath(dir string, mapID uint32, gx, gy int) string {
	return filepath.Join(dir, "mmaps", fmt.Sprintf("%04d%02d%02d.mmtile", mapID, gx, gy))
}

// ParseTileHeader decodes and validates a tile header.
func ParseTileHeader(b []byte) (TileHeader, error) {
	if len(b) < TileHeaderSize {
		return TileHeader{}, fmt.Errorf("parse tile header: %w", ErrTruncated)
	}
	h := TileHeader{
		NavMeshVersion: binary.LittleEndian.Uint32(b[0:4]),
		Magic:          binary.LittleEndian.Uint32(b[4:8]),
		Version:        binary.LittleEndian.Uint32(b[8:12]),
		Size:           binary.LittleEndian.Uint32(b[12:16]),
		UsesLiquids:    b[16] != 0,
	}
	if h.Magic != MMapMagic {
		return h, fmt.Errorf("parse tile header magic 0x%08X: %w", h.Magic, ErrBadMagic)
	}
	if h.Version != MMapVersion || h.NavMeshVersion != NavMeshVersion {
		return h, fmt.Errorf("parse tile header version %d/%d: %w", h.Version, h.NavMeshVersion, ErrBadVersion)
	}
	return h, nil
}

// ParseTile decodes a tile header and copies its payload.
func ParseTile(b []byte) (*Tile, error) {
	h, err := ParseTileHeader(b)
	if err != nil {
		return nil, err
	}
	end := TileHeaderSize + int(h.Size)
	if len(b) < end {
		return nil, fmt.Errorf("parse tile payload of %d bytes: %w", h.Size, ErrTruncated)
	}
	data := make([]byte, h.Size)
	copy(data, b[TileHeaderSize:end])
	return &Tile{Header: h, Data: data}, nil
}

// LoadTile reads and decodes a navigation tile file.
func LoadTile(path string) (*Tile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tile: %w", err)
	}
	return ParseTile(data)
}
