package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/spawn"
)

// SpawnRepository loads spawn content. It implements spawn.Source.
type SpawnRepository struct {
	pool *pgxpool.Pool
}

// NewSpawnRepository creates a new spawn repository
func NewSpawnRepository(pool *pgxpool.Pool) *SpawnRepository {
	return &SpawnRepository{pool: pool}
}

// LoadSpawnGroups loads every spawn group.
func (r *SpawnRepository) LoadSpawnGroups(ctx context.Context) ([]spawn.Group, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT group_id, name, map_id, flags FROM spawn_groups ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("query spawn_groups: %w", err)
	}
	defer rows.Close()

	var result []spawn.Group
	for rows.Next() {
		var (
			id, mapID, flags int32
			name             string
		)
		if err := rows.Scan(&id, &name, &mapID, &flags); err != nil {
			return nil, fmt.Errorf("scan spawn_groups: %w", err)
		}
		result = append(result, spawn.Group{
			ID:    uint32(id),
			Name:  name,
			MapID: uint32(mapID),
			Flags: spawn.GroupFlags(flags),
		})
	}
	return result, rows.Err()
}

// LoadSpawns loads all spawns from database
func (r *SpawnRepository) LoadSpawns(ctx context.Context) ([]spawn.Data, error) {
	query := `
		SELECT spawn_type, spawn_id, map_id, entry, x, y, z, orientation,
		       group_id, difficulties, pool_id, personal_phase, respawn_secs, active
		FROM spawns
		ORDER BY spawn_type, spawn_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading all spawns: %w", err)
	}
	defer rows.Close()

	spawns := make([]spawn.Data, 0, 256)

	for rows.Next() {
		var (
			typ          int16
			spawnID      int64
			mapID, entry int32
			x, y, z, o   float32
			groupID      int32
			difficulties []int16
			poolID       int32
			phase        int32
			respawnSecs  int32
			active       bool
		)

		if err := rows.Scan(&typ, &spawnID, &mapID, &entry, &x, &y, &z, &o,
			&groupID, &difficulties, &poolID, &phase, &respawnSecs, &active); err != nil {
			return nil, fmt.Errorf("scanning spawn row: %w", err)
		}

		d := spawn.Data{
			Metadata:      spawn.Metadata{Type: spawn.Type(typ), SpawnID: uint64(spawnID), MapID: uint32(mapID)},
			GroupID:       uint32(groupID),
			Entry:         uint32(entry),
			Position:      model.NewPosition(x, y, z, o),
			PoolID:        uint32(poolID),
			PersonalPhase: uint32(phase),
			RespawnDelay:  time.Duration(respawnSecs) * time.Second,
			Active:        active,
		}
		for _, diff := range difficulties {
			d.Difficulties = append(d.Difficulties, uint8(diff))
		}
		spawns = append(spawns, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spawn rows: %w", err)
	}

	return spawns, nil
}

// LoadLinkedRespawns loads respawn links.
func (r *SpawnRepository) LoadLinkedRespawns(ctx context.Context) ([]spawn.LinkedRespawn, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT spawn_type, spawn_id, master_type, master_id FROM linked_respawns`)
	if err != nil {
		return nil, fmt.Errorf("query linked_respawns: %w", err)
	}
	defer rows.Close()

	var result []spawn.LinkedRespawn
	for rows.Next() {
		var (
			typ, masterType int16
			id, masterID    int64
		)
		if err := rows.Scan(&typ, &id, &masterType, &masterID); err != nil {
			return nil, fmt.Errorf("scan linked_respawns: %w", err)
		}
		result = append(result, spawn.LinkedRespawn{
			Spawn:  spawn.Key{Type: spawn.Type(typ), SpawnID: uint64(id)},
			Master: spawn.Key{Type: spawn.Type(masterType), SpawnID: uint64(masterID)},
		})
	}
	return result, rows.Err()
}

// LoadPools loads spawn pools with their members.
func (r *SpawnRepository) LoadPools(ctx context.Context) ([]spawn.Pool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.pool_id, p.map_id, p.max_limit, m.spawn_type, m.spawn_id
		 FROM spawn_pools p
		 JOIN spawn_pool_members m ON m.pool_id = p.pool_id
		 ORDER BY p.pool_id, m.spawn_type, m.spawn_id`)
	if err != nil {
		return nil, fmt.Errorf("query spawn_pools: %w", err)
	}
	defer rows.Close()

	var result []spawn.Pool
	for rows.Next() {
		var (
			poolID, mapID, limit int32
			typ                  int16
			spawnID              int64
		)
		if err := rows.Scan(&poolID, &mapID, &limit, &typ, &spawnID); err != nil {
			return nil, fmt.Errorf("scan spawn_pools: %w", err)
		}
		if n := len(result); n == 0 || result[n-1].ID != uint32(poolID) {
			result = append(result, spawn.Pool{ID: uint32(poolID), MapID: uint32(mapID), MaxLimit: int(limit)})
		}
		p := &result[len(result)-1]
		p.Members = append(p.Members, spawn.Key{Type: spawn.Type(typ), SpawnID: uint64(spawnID)})
	}
	return result, rows.Err()
}

// SaveSpawn inserts or replaces a spawn row. Used by content tools and tests.
func (r *SpawnRepository) SaveSpawn(ctx context.Context, d spawn.Data) error {
	difficulties := make([]int16, len(d.Difficulties))
	for i, diff := range d.Difficulties {
		difficulties[i] = int16(diff)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO spawns (spawn_type, spawn_id, map_id, entry, x, y, z, orientation,
		                     group_id, difficulties, pool_id, personal_phase, respawn_secs, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (spawn_type, spawn_id) DO UPDATE SET
		   map_id = EXCLUDED.map_id, entry = EXCLUDED.entry,
		   x = EXCLUDED.x, y = EXCLUDED.y, z = EXCLUDED.z, orientation = EXCLUDED.orientation,
		   group_id = EXCLUDED.group_id, difficulties = EXCLUDED.difficulties,
		   pool_id = EXCLUDED.pool_id, personal_phase = EXCLUDED.personal_phase,
		   respawn_secs = EXCLUDED.respawn_secs, active = EXCLUDED.active`,
		int16(d.Type), int64(d.SpawnID), int32(d.MapID), int32(d.Entry),
		d.Position.X, d.Position.Y, d.Position.Z, d.Position.O,
		int32(d.GroupID), difficulties, int32(d.PoolID), int32(d.PersonalPhase),
		int32(d.RespawnDelay/time.Second), d.Active)
	if err != nil {
		return fmt.Errorf("upsert spawn %s %d: %w", d.Type, d.SpawnID, err)
	}
	return nil
}

// SaveSpawnGroup inserts or replaces a spawn group row.
func (r *SpawnRepository) SaveSpawnGroup(ctx context.Context, g spawn.Group) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO spawn_groups (group_id, name, map_id, flags)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (group_id) DO UPDATE SET
		   name = EXCLUDED.name, map_id = EXCLUDED.map_id, flags = EXCLUDED.flags`,
		int32(g.ID), g.Name, int32(g.MapID), int32(g.Flags))
	if err != nil {
		return fmt.Errorf("upsert spawn group %d: %w", g.ID, err)
	}
	return nil
}
