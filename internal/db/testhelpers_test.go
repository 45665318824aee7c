package db

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/worldcore/internal/spawn"
	"github.com/udisondev/worldcore/internal/testutil"
)

// setupTestDB returns a migrated pool on a fresh postgres container.
func setupTestDB(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	return testutil.SetupTestDB(tb)
}

type writeCall struct {
	op  string
	rec spawn.RespawnRecord
}

// memBackend is an in-memory RespawnBackend recording every call in order.
type memBackend struct {
	mu    sync.Mutex
	calls []writeCall
	rows  map[spawn.RespawnRecord]struct{}
	fail  error
	gate  chan struct{}
}

func newMemBackend() *memBackend {
	return &memBackend{rows: make(map[spawn.RespawnRecord]struct{})}
}

func (b *memBackend) wait() {
	if b.gate != nil {
		<-b.gate
	}
}

func (b *memBackend) record(op string, rec spawn.RespawnRecord) error {
	b.wait()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, writeCall{op: op, rec: rec})
	return b.fail
}

func (b *memBackend) LoadRespawns(_ context.Context, mapID, instanceID uint32) ([]spawn.RespawnRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []spawn.RespawnRecord
	for r := range b.rows {
		if r.MapID == mapID && r.InstanceID == instanceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *memBackend) SaveRespawn(_ context.Context, rec spawn.RespawnRecord) error {
	if err := b.record("save", rec); err != nil {
		return err
	}
	b.mu.Lock()
	b.rows[rec] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *memBackend) DeleteRespawn(_ context.Context, t spawn.Type, spawnID uint64, mapID, instanceID uint32) error {
	rec := spawn.RespawnRecord{Type: t, SpawnID: spawnID, MapID: mapID, InstanceID: instanceID}
	if err := b.record("delete", rec); err != nil {
		return err
	}
	b.mu.Lock()
	for r := range b.rows {
		if r.Type == t && r.SpawnID == spawnID && r.MapID == mapID && r.InstanceID == instanceID {
			delete(b.rows, r)
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *memBackend) DeleteInstanceRespawns(_ context.Context, mapID, instanceID uint32) error {
	if err := b.record("delete_instance", spawn.RespawnRecord{MapID: mapID, InstanceID: instanceID}); err != nil {
		return err
	}
	b.mu.Lock()
	for r := range b.rows {
		if r.MapID == mapID && r.InstanceID == instanceID {
			delete(b.rows, r)
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *memBackend) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.op
	}
	return out
}
