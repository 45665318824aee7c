package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/worldcore/internal/spawn"
)

// RespawnRepository persists pending respawn times.
type RespawnRepository struct {
	pool *pgxpool.Pool
}

// NewRespawnRepository creates a new RespawnRepository.
func NewRespawnRepository(pool *pgxpool.Pool) *RespawnRepository {
	return &RespawnRepository{pool: pool}
}

// LoadRespawns loads the respawn rows of one map instance.
func (r *RespawnRepository) LoadRespawns(ctx context.Context, mapID, instanceID uint32) ([]spawn.RespawnRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT spawn_type, spawn_id, respawn_time
		 FROM respawns WHERE map_id = $1 AND instance_id = $2
		 ORDER BY respawn_time`, int32(mapID), int32(instanceID))
	if err != nil {
		return nil, fmt.Errorf("query respawns map %d instance %d: %w", mapID, instanceID, err)
	}
	defer rows.Close()

	var result []spawn.RespawnRecord
	for rows.Next() {
		var (
			typ     int16
			spawnID int64
			due     int64
		)
		if err := rows.Scan(&typ, &spawnID, &due); err != nil {
			return nil, fmt.Errorf("scan respawn: %w", err)
		}
		result = append(result, spawn.RespawnRecord{
			Type:        spawn.Type(typ),
			SpawnID:     uint64(spawnID),
			RespawnTime: due,
			MapID:       mapID,
			InstanceID:  instanceID,
		})
	}
	return result, rows.Err()
}

// SaveRespawn inserts or updates one respawn row.
func (r *RespawnRepository) SaveRespawn(ctx context.Context, rec spawn.RespawnRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO respawns (spawn_type, spawn_id, map_id, instance_id, respawn_time)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (spawn_type, spawn_id, map_id, instance_id) DO UPDATE SET
		   respawn_time = EXCLUDED.respawn_time`,
		int16(rec.Type), int64(rec.SpawnID), int32(rec.MapID), int32(rec.InstanceID), rec.RespawnTime)
	if err != nil {
		return fmt.Errorf("upsert respawn %s %d: %w", rec.Type, rec.SpawnID, err)
	}
	return nil
}

// DeleteRespawn removes one respawn row.
func (r *RespawnRepository) DeleteRespawn(ctx context.Context, t spawn.Type, spawnID uint64, mapID, instanceID uint32) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM respawns
		 WHERE spawn_type = $1 AND spawn_id = $2 AND map_id = $3 AND instance_id = $4`,
		int16(t), int64(spawnID), int32(mapID), int32(instanceID))
	if err != nil {
		return fmt.Errorf("delete respawn %s %d: %w", t, spawnID, err)
	}
	return nil
}

// DeleteInstanceRespawns removes every respawn row of one map instance.
func (r *RespawnRepository) DeleteInstanceRespawns(ctx context.Context, mapID, instanceID uint32) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM respawns WHERE map_id = $1 AND instance_id = $2`,
		int32(mapID), int32(instanceID))
	if err != nil {
		return fmt.Errorf("delete respawns map %d instance %d: %w", mapID, instanceID, err)
	}
	return nil
}

// DeleteOrphanRespawns removes instance respawn rows whose instance id is not in keep.
// Returns the number of rows removed.
func (r *RespawnRepository) DeleteOrphanRespawns(ctx context.Context, keep []uint32) (int64, error) {
	ids := make([]int32, len(keep))
	for i, id := range keep {
		ids[i] = int32(id)
	}
	result, err := r.pool.Exec(ctx,
		`DELETE FROM respawns WHERE instance_id <> 0 AND NOT (instance_id = ANY($1))`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete orphan respawns: %w", err)
	}
	return result.RowsAffected(), nil
}
