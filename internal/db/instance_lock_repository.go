package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/worldcore/internal/instance"
)

// InstanceLockRepository persists instance locks and shared instance data.
// It implements instance.Store.
type InstanceLockRepository struct {
	pool *pgxpool.Pool
}

// NewInstanceLockRepository creates a new InstanceLockRepository.
func NewInstanceLockRepository(pool *pgxpool.Pool) *InstanceLockRepository {
	return &InstanceLockRepository{pool: pool}
}

// LoadInstanceLocks loads every player lock and every shared data record.
func (r *InstanceLockRepository) LoadInstanceLocks(ctx context.Context) ([]instance.LockRow, []instance.SharedRow, error) {
	shared, err := r.loadShared(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT owner_guid, map_id, difficulty, instance_id, completed_mask,
		        data, entrance_loc, expiry, extended
		 FROM instance_locks`)
	if err != nil {
		return nil, nil, fmt.Errorf("query instance_locks: %w", err)
	}
	defer rows.Close()

	var locks []instance.LockRow
	for rows.Next() {
		var (
			owner      int64
			mapID      int32
			difficulty int16
			instanceID int32
			mask       int64
			blob       []byte
			entrance   int32
			row        instance.LockRow
		)
		if err := rows.Scan(&owner, &mapID, &difficulty, &instanceID, &mask,
			&blob, &entrance, &row.Expiry, &row.Extended); err != nil {
			return nil, nil, fmt.Errorf("scan instance_locks: %w", err)
		}
		data, err := DecodeLockData(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("instance lock of %d on map %d: %w", owner, mapID, err)
		}
		row.Owner = uint64(owner)
		row.MapID = uint32(mapID)
		row.Difficulty = uint8(difficulty)
		row.InstanceID = uint32(instanceID)
		row.CompletedEncountersMask = uint32(mask)
		row.Data = data
		row.EntranceLocID = uint32(entrance)
		locks = append(locks, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating instance_locks: %w", err)
	}
	return locks, shared, nil
}

func (r *InstanceLockRepository) loadShared(ctx context.Context) ([]instance.SharedRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT instance_id, completed_mask, data, entrance_loc FROM instance_shared_data`)
	if err != nil {
		return nil, fmt.Errorf("query instance_shared_data: %w", err)
	}
	defer rows.Close()

	var result []instance.SharedRow
	for rows.Next() {
		var (
			instanceID int32
			mask       int64
			blob       []byte
			entrance   int32
		)
		if err := rows.Scan(&instanceID, &mask, &blob, &entrance); err != nil {
			return nil, fmt.Errorf("scan instance_shared_data: %w", err)
		}
		data, err := DecodeLockData(blob)
		if err != nil {
			return nil, fmt.Errorf("shared data of instance %d: %w", instanceID, err)
		}
		row := instance.SharedRow{InstanceID: uint32(instanceID)}
		row.CompletedEncountersMask = uint32(mask)
		row.Data = data
		row.EntranceLocID = uint32(entrance)
		result = append(result, row)
	}
	return result, rows.Err()
}

// WithTx runs fn in one transaction; fn's error rolls it back.
func (r *InstanceLockRepository) WithTx(ctx context.Context, fn func(instance.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin instance lock transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "error", err)
		}
	}()

	if err := fn(lockTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit instance lock transaction: %w", err)
	}
	return nil
}

// MaxInstanceID returns the highest instance id stored in any lock table.
func (r *InstanceLockRepository) MaxInstanceID(ctx context.Context) (uint32, error) {
	var highest int32
	err := r.pool.QueryRow(ctx,
		`SELECT GREATEST(
		   COALESCE((SELECT MAX(instance_id) FROM instance_locks), 0),
		   COALESCE((SELECT MAX(instance_id) FROM instance_shared_data), 0))`).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("max instance id: %w", err)
	}
	return uint32(highest), nil
}

// DeleteExpiredLocks removes locks that expired before cutoff and were not extended.
func (r *InstanceLockRepository) DeleteExpiredLocks(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM instance_locks WHERE expiry < $1 AND NOT extended`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired instance locks: %w", err)
	}
	return result.RowsAffected(), nil
}

type lockTx struct {
	tx pgx.Tx
}

func (t lockTx) SaveSharedData(ctx context.Context, row instance.SharedRow) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO instance_shared_data (instance_id, completed_mask, data, entrance_loc)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (instance_id) DO UPDATE SET
		   completed_mask = EXCLUDED.completed_mask,
		   data           = EXCLUDED.data,
		   entrance_loc   = EXCLUDED.entrance_loc`,
		int32(row.InstanceID), int64(row.CompletedEncountersMask),
		EncodeLockData(row.Data), int32(row.EntranceLocID))
	if err != nil {
		return fmt.Errorf("upsert instance_shared_data %d: %w", row.InstanceID, err)
	}
	return nil
}

func (t lockTx) DeleteSharedData(ctx context.Context, instanceID uint32) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM instance_shared_data WHERE instance_id = $1`, int32(instanceID))
	if err != nil {
		return fmt.Errorf("delete instance_shared_data %d: %w", instanceID, err)
	}
	return nil
}

func (t lockTx) SaveLock(ctx context.Context, row instance.LockRow) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO instance_locks
		   (owner_guid, map_id, difficulty, instance_id, completed_mask, data, entrance_loc, expiry, extended)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (owner_guid, map_id, difficulty) DO UPDATE SET
		   instance_id    = EXCLUDED.instance_id,
		   completed_mask = EXCLUDED.completed_mask,
		   data           = EXCLUDED.data,
		   entrance_loc   = EXCLUDED.entrance_loc,
		   expiry         = EXCLUDED.expiry,
		   extended       = EXCLUDED.extended`,
		int64(row.Owner), int32(row.MapID), int16(row.Difficulty), int32(row.InstanceID),
		int64(row.CompletedEncountersMask), EncodeLockData(row.Data), int32(row.EntranceLocID),
		row.Expiry, row.Extended)
	if err != nil {
		return fmt.Errorf("upsert instance_locks owner %d map %d: %w", row.Owner, row.MapID, err)
	}
	return nil
}
