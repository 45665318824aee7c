package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/udisondev/worldcore/internal/spawn"
)

// RespawnRepository persists pending respawn times.
type RespawnRepository struct {
	db *sql.DB
}

// LoadRespawns returns the respawn rows of one map instance ordered by respawn time.
func (r *RespawnRepository) LoadRespawns(ctx context.Context, mapID, instanceID uint32) ([]spawn.RespawnRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT spawn_type, spawn_id, respawn_time
		 FROM respawns WHERE map_id = ? AND instance_id = ?
		 ORDER BY respawn_time`, mapID, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query respawns map %d instance %d: %w", mapID, instanceID, err)
	}
	defer rows.Close()

	var result []spawn.RespawnRecord
	for rows.Next() {
		rec := spawn.RespawnRecord{MapID: mapID, InstanceID: instanceID}
		var spawnID int64
		if err := rows.Scan(&rec.Type, &spawnID, &rec.RespawnTime); err != nil {
			return nil, fmt.Errorf("scan respawn: %w", err)
		}
		rec.SpawnID = uint64(spawnID)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// SaveRespawn inserts or replaces a respawn row.
func (r *RespawnRepository) SaveRespawn(ctx context.Context, rec spawn.RespawnRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO respawns (spawn_type, spawn_id, map_id, instance_id, respawn_time)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (spawn_type, spawn_id, map_id, instance_id) DO UPDATE SET
		   respawn_time = excluded.respawn_time`,
		rec.Type, int64(rec.SpawnID), rec.MapID, rec.InstanceID, rec.RespawnTime)
	if err != nil {
		return fmt.Errorf("upsert respawn %s %d: %w", rec.Type, rec.SpawnID, err)
	}
	return nil
}

// DeleteRespawn removes a single respawn row.
func (r *RespawnRepository) DeleteRespawn(ctx context.Context, t spawn.Type, spawnID uint64, mapID, instanceID uint32) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM respawns
		 WHERE spawn_type = ? AND spawn_id = ? AND map_id = ? AND instance_id = ?`,
		t, int64(spawnID), mapID, instanceID)
	if err != nil {
		return fmt.Errorf("delete respawn %s %d: %w", t, spawnID, err)
	}
	return nil
}

// DeleteInstanceRespawns removes every respawn row of a map instance.
func (r *RespawnRepository) DeleteInstanceRespawns(ctx context.Context, mapID, instanceID uint32) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM respawns WHERE map_id = ? AND instance_id = ?`, mapID, instanceID)
	if err != nil {
		return fmt.Errorf("delete respawns map %d instance %d: %w", mapID, instanceID, err)
	}
	return nil
}

// DeleteOrphanRespawns removes instance respawn rows whose instance id is not in keep.
func (r *RespawnRepository) DeleteOrphanRespawns(ctx context.Context, keep []uint32) (int64, error) {
	query := `DELETE FROM respawns WHERE instance_id <> 0`
	args := make([]any, len(keep))
	if len(keep) > 0 {
		query += ` AND instance_id NOT IN (?` + strings.Repeat(", ?", len(keep)-1) + `)`
		for i, id := range keep {
			args[i] = id
		}
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete orphan respawns: %w", err)
	}
	return result.RowsAffected()
}
