// Package db is the PostgreSQL persistence of the world core: respawn
// times, instance locks and spawn content.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a DB handle.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Pool returns the underlying pgx pool.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// Respawns returns the respawn repository over this pool.
func (d *DB) Respawns() *RespawnRepository {
	return NewRespawnRepository(d.pool)
}

// InstanceLocks returns the instance lock repository over this pool.
func (d *DB) InstanceLocks() *InstanceLockRepository {
	return NewInstanceLockRepository(d.pool)
}

// Spawns returns the spawn content repository over this pool.
func (d *DB) Spawns() *SpawnRepository {
	return NewSpawnRepository(d.pool)
}
