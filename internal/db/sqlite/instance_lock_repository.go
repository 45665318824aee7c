package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/worldcore/internal/db"
	"github.com/udisondev/worldcore/internal/instance"
)

// InstanceLockRepository persists instance locks. It implements instance.Store.
type InstanceLockRepository struct {
	db *sql.DB
}

// LoadInstanceLocks reads every player lock and every shared instance row.
func (r *InstanceLockRepository) LoadInstanceLocks(ctx context.Context) ([]instance.LockRow, []instance.SharedRow, error) {
	shared, err := r.loadShared(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.QueryContext(ctx,
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
			row    instance.LockRow
			owner  int64
			blob   []byte
			expiry int64
		)
		if err := rows.Scan(&owner, &row.MapID, &row.Difficulty, &row.InstanceID,
			&row.CompletedEncountersMask, &blob, &row.EntranceLocID, &expiry, &row.Extended); err != nil {
			return nil, nil, fmt.Errorf("scan instance_locks: %w", err)
		}
		if row.Data, err = db.DecodeLockData(blob); err != nil {
			return nil, nil, fmt.Errorf("instance lock of %d on map %d: %w", owner, row.MapID, err)
		}
		row.Owner = uint64(owner)
		row.Expiry = time.Unix(expiry, 0).UTC()
		locks = append(locks, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating instance_locks: %w", err)
	}
	return locks, shared, nil
}

func (r *InstanceLockRepository) loadShared(ctx context.Context) ([]instance.SharedRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT instance_id, completed_mask, data, entrance_loc FROM instance_shared_data`)
	if err != nil {
		return nil, fmt.Errorf("query instance_shared_data: %w", err)
	}
	defer rows.Close()

	var result []instance.SharedRow
	for rows.Next() {
		var (
			row  instance.SharedRow
			blob []byte
		)
		if err := rows.Scan(&row.InstanceID, &row.CompletedEncountersMask, &blob, &row.EntranceLocID); err != nil {
			return nil, fmt.Errorf("scan instance_shared_data: %w", err)
		}
		if row.Data, err = db.DecodeLockData(blob); err != nil {
			return nil, fmt.Errorf("shared data of instance %d: %w", row.InstanceID, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// WithTx runs fn in one transaction; fn's error rolls it back.
func (r *InstanceLockRepository) WithTx(ctx context.Context, fn func(instance.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin instance lock transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("rollback failed", "error", err)
		}
	}()

	if err := fn(lockTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit instance lock transaction: %w", err)
	}
	return nil
}

// MaxInstanceID returns the highest instance id stored in any lock table.
func (r *InstanceLockRepository) MaxInstanceID(ctx context.Context) (uint32, error) {
	var highest int64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(
		   COALESCE((SELECT MAX(instance_id) FROM instance_locks), 0),
		   COALESCE((SELECT MAX(instance_id) FROM instance_shared_data), 0))`).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("max instance id: %w", err)
	}
	return uint32(highest), nil
}

type lockTx struct {
	tx *sql.Tx
}

func (t lockTx) SaveSharedData(ctx context.Context, row instance.SharedRow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO instance_shared_data (instance_id, completed_mask, data, entrance_loc)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (instance_id) DO UPDATE SET
		   completed_mask = excluded.completed_mask,
		   data           = excluded.data,
		   entrance_loc   = excluded.entrance_loc`,
		row.InstanceID, row.CompletedEncountersMask, db.EncodeLockData(row.Data), row.EntranceLocID)
	if err != nil {
		return fmt.Errorf("upsert instance_shared_data %d: %w", row.InstanceID, err)
	}
	return nil
}

func (t lockTx) DeleteSharedData(ctx context.Context, instanceID uint32) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM instance_shared_data WHERE instance_id = ?`, instanceID)
	if err != nil {
		return fmt.Errorf("delete instance_shared_data %d: %w", instanceID, err)
	}
	return nil
}

func (t lockTx) SaveLock(ctx context.Context, row instance.LockRow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO instance_locks
		   (owner_guid, map_id, difficulty, instance_id, completed_mask, data, entrance_loc, expiry, extended)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_guid, map_id, difficulty) DO UPDATE SET
		   instance_id    = excluded.instance_id,
		   completed_mask = excluded.completed_mask,
		   data           = excluded.data,
		   entrance_loc   = excluded.entrance_loc,
		   expiry         = excluded.expiry,
		   extended       = excluded.extended`,
		int64(row.Owner), row.MapID, row.Difficulty, row.InstanceID, row.CompletedEncountersMask,
		db.EncodeLockData(row.Data), row.EntranceLocID, row.Expiry.Unix(), row.Extended)
	if err != nil {
		return fmt.Errorf("upsert instance_locks owner %d map %d: %w", row.Owner, row.MapID, err)
	}
	return nil
}
