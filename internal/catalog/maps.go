package catalog

import (
	"fmt"
	"time"

	"github.com/udisondev/worldcore/internal/world"
)

type mapsDoc struct {
	Maps []mapDef `yaml:"maps"`
}

type mapDef struct {
	ID           uint32          `yaml:"id"`
	Name         string          `yaml:"name"`
	Kind         string          `yaml:"kind"`
	Parent       *int32          `yaml:"parent"`
	FactionSplit bool            `yaml:"faction_split"`
	FlexLocking  bool            `yaml:"flex_locking"`
	Script       string          `yaml:"script"`
	Difficulties []difficultyDef `yaml:"difficulties"`
}

type difficultyDef struct {
	ID              uint8         `yaml:"id"`
	MaxPlayers      int           `yaml:"max_players"`
	ResetInterval   time.Duration `yaml:"reset_interval"`
	EncounterLocks  bool          `yaml:"encounter_locks"`
	InstanceIDBound bool          `yaml:"instance_id_bound"`
}

func (c *Catalog) parseMaps(data []byte) error {
	var doc mapsDoc
	if err := decode(data, &doc); err != nil {
		return err
	}
	for _, d := range doc.Maps {
		if _, dup := c.entries[d.ID]; dup {
			return fmt.Errorf("map %d: %w", d.ID, ErrDuplicateMap)
		}
		e, err := d.entry()
		if err != nil {
			return fmt.Errorf("map %d: %w", d.ID, err)
		}
		c.entries[d.ID] = e
	}
	return nil
}

func (d mapDef) entry() (*world.Entry, error) {
	kind := world.KindCommon
	if d.Kind != "" {
		k, ok := world.ParseMapKind(d.Kind)
		if !ok {
			return nil, fmt.Errorf("%q: %w", d.Kind, ErrUnknownMapKind)
		}
		kind = k
	}
	parent := int32(-1)
	if d.Parent != nil {
		parent = *d.Parent
	}

	e := &world.Entry{
		ID:           d.ID,
		Name:         d.Name,
		Kind:         kind,
		ParentID:     parent,
		FactionSplit: d.FactionSplit,
		FlexLocking:  d.FlexLocking,
		ScriptName:   d.Script,
	}
	for _, dd := range d.Difficulties {
		e.Difficulties = append(e.Difficulties, world.DifficultyEntry{
			ID:                 dd.ID,
			MaxPlayers:         dd.MaxPlayers,
			ResetInterval:      dd.ResetInterval,
			UsesEncounterLocks: dd.EncounterLocks,
			InstanceIDBound:    dd.InstanceIDBound,
		})
	}
	return e, nil
}
