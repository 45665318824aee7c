// Package catalog loads the static world content from YAML: map entries,
// transport paths and spawns.
package catalog

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/worldcore/internal/spawn"
	"github.com/udisondev/worldcore/internal/transport"
	"github.com/udisondev/worldcore/internal/world"
)

// Files read from the catalog directory. A missing file is an empty section.
const (
	MapsFile       = "maps.yaml"
	TransportsFile = "transports.yaml"
	SpawnsFile     = "spawns.yaml"
)

// Catalog is the static content of the world. Read-only after Load.
type Catalog struct {
	entries map[uint32]*world.Entry
	paths   []transport.PathDef
	spawns  *spawn.StaticSource
}

// Load reads every catalog file from dir.
func Load(dir string) (*Catalog, error) {
	var raw [3][]byte
	for i, name := range []string{MapsFile, TransportsFile, SpawnsFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading catalog %s: %w", name, err)
		}
		raw[i] = data
	}

	c, err := Parse(raw[0], raw[1], raw[2])
	if err != nil {
		return nil, err
	}
	slog.Info("catalog loaded",
		"dir", dir,
		"maps", len(c.entries),
		"transports", len(c.paths),
		"spawns", len(c.spawns.Spawns))
	return c, nil
}

// Parse builds a catalog from the raw YAML documents; nil documents are empty.
func Parse(maps, transports, spawns []byte) (*Catalog, error) {
	c := &Catalog{
		entries: make(map[uint32]*world.Entry),
		spawns:  &spawn.StaticSource{},
	}
	if err := c.parseMaps(maps); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", MapsFile, err)
	}
	if err := c.parseTransports(transports); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", TransportsFile, err)
	}
	if err := c.parseSpawns(spawns); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", SpawnsFile, err)
	}
	return c, nil
}

// MapEntry returns the static entry of map id.
func (c *Catalog) MapEntry(id uint32) (*world.Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Entries returns every map entry ordered by id.
func (c *Catalog) Entries() []*world.Entry {
	out := make([]*world.Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *world.Entry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// TransportPaths returns the transport path definitions.
func (c *Catalog) TransportPaths() []transport.PathDef { return c.paths }

// Spawns is the spawn content as a spawn.Source.
func (c *Catalog) Spawns() *spawn.StaticSource { return c.spawns }

// ScriptNames returns the distinct instance script names referenced by map entries.
func (c *Catalog) ScriptNames() []string {
	var names []string
	for _, e := range c.entries {
		if e.ScriptName != "" && !slices.Contains(names, e.ScriptName) {
			names = append(names, e.ScriptName)
		}
	}
	slices.Sort(names)
	return names
}

func decode(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, out)
}
