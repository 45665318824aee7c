package catalog

import (
	"fmt"
	"time"

	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

type spawnsDoc struct {
	Groups []groupDef `yaml:"groups"`
	Spawns []spawnDef `yaml:"spawns"`
	Links  []linkDef  `yaml:"links"`
	Pools  []poolDef  `yaml:"pools"`
}

type groupDef struct {
	ID    uint32   `yaml:"id"`
	Name  string   `yaml:"name"`
	Map   uint32   `yaml:"map"`
	Flags []string `yaml:"flags"`
}

type spawnDef struct {
	Type         string        `yaml:"type"`
	ID           uint64        `yaml:"id"`
	Map          uint32        `yaml:"map"`
	Entry        uint32        `yaml:"entry"`
	X            float32       `yaml:"x"`
	Y            float32       `yaml:"y"`
	Z            float32       `yaml:"z"`
	O            float32       `yaml:"o"`
	Group        uint32        `yaml:"group"`
	Difficulties []uint8       `yaml:"difficulties"`
	Pool         uint32        `yaml:"pool"`
	Phase        uint32        `yaml:"personal_phase"`
	Respawn      time.Duration `yaml:"respawn"`
	Active       bool          `yaml:"active"`
}

type keyDef struct {
	Type string `yaml:"type"`
	ID   uint64 `yaml:"id"`
}

type linkDef struct {
	Spawn  keyDef `yaml:"spawn"`
	Master keyDef `yaml:"master"`
}

type poolDef struct {
	ID      uint32   `yaml:"id"`
	Map     uint32   `yaml:"map"`
	Max     int      `yaml:"max"`
	Members []keyDef `yaml:"members"`
}

var groupFlagNames = map[string]spawn.GroupFlags{
	"compatibility_mode":           spawn.GroupFlagCompatibilityMode,
	"manual_spawn":                 spawn.GroupFlagManualSpawn,
	"dynamic_spawn_rate":           spawn.GroupFlagDynamicSpawnRate,
	"escort_quest_npc":             spawn.GroupFlagEscortQuestNpc,
	"despawn_on_condition_failure": spawn.GroupFlagDespawnOnConditionFailure,
}

// parseSpawnType accepts the names produced by spawn.Type.String; empty means creature.
func parseSpawnType(s string) (spawn.Type, error) {
	if s == "" {
		return spawn.TypeCreature, nil
	}
	for t := range spawn.NumTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownSpawnType)
}

func (k keyDef) key() (spawn.Key, error) {
	t, err := parseSpawnType(k.Type)
	if err != nil {
		return spawn.Key{}, err
	}
	return spawn.Key{Type: t, SpawnID: k.ID}, nil
}

func (c *Catalog) parseSpawns(data []byte) error {
	var doc spawnsDoc
	if err := decode(data, &doc); err != nil {
		return err
	}
	src := c.spawns

	for _, g := range doc.Groups {
		var flags spawn.GroupFlags
		for _, name := range g.Flags {
			f, ok := groupFlagNames[name]
			if !ok {
				return fmt.Errorf("group %d flag %q: %w", g.ID, name, ErrUnknownGroupFlag)
			}
			flags |= f
		}
		src.Groups = append(src.Groups, spawn.Group{ID: g.ID, Name: g.Name, MapID: g.Map, Flags: flags})
	}

	for _, s := range doc.Spawns {
		t, err := parseSpawnType(s.Type)
		if err != nil {
			return fmt.Errorf("spawn %d: %w", s.ID, err)
		}
		src.Spawns = append(src.Spawns, spawn.Data{
			Metadata:      spawn.Metadata{Type: t, SpawnID: s.ID, MapID: s.Map},
			GroupID:       s.Group,
			Entry:         s.Entry,
			Position:      model.NewPosition(s.X, s.Y, s.Z, s.O),
			Difficulties:  s.Difficulties,
			PoolID:        s.Pool,
			PersonalPhase: s.Phase,
			RespawnDelay:  s.Respawn,
			Active:        s.Active,
		})
	}

	for _, l := range doc.Links {
		sk, err := l.Spawn.key()
		if err != nil {
			return fmt.Errorf("link of spawn %d: %w", l.Spawn.ID, err)
		}
		mk, err := l.Master.key()
		if err != nil {
			return fmt.Errorf("link of spawn %d: %w", l.Spawn.ID, err)
		}
		src.Links = append(src.Links, spawn.LinkedRespawn{Spawn: sk, Master: mk})
	}

	for _, p := range doc.Pools {
		pool := spawn.Pool{ID: p.ID, MapID: p.Map, MaxLimit: p.Max}
		for _, m := range p.Members {
			k, err := m.key()
			if err != nil {
				return fmt.Errorf("pool %d: %w", p.ID, err)
			}
			pool.Members = append(pool.Members, k)
		}
		src.Pools = append(src.Pools, pool)
	}
	return nil
}
