package db

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/worldcore/internal/spawn"
)

// RespawnBackend is the synchronous respawn table of a storage driver.
type RespawnBackend interface {
	LoadRespawns(ctx context.Context, mapID, instanceID uint32) ([]spawn.RespawnRecord, error)
	SaveRespawn(ctx context.Context, rec spawn.RespawnRecord) error
	DeleteRespawn(ctx context.Context, t spawn.Type, spawnID uint64, mapID, instanceID uint32) error
	DeleteInstanceRespawns(ctx context.Context, mapID, instanceID uint32) error
}

type respawnOpKind uint8

const (
	opSave respawnOpKind = iota + 1
	opDelete
	opDeleteInstance
	opBarrier
)

type respawnOp struct {
	kind respawnOpKind
	rec  spawn.RespawnRecord
	done chan struct{}
}

// RespawnWriter applies respawn writes on a single goroutine so map ticks
// never wait on the database. Writes are applied in submission order.
// It implements world.RespawnStore.
type RespawnWriter struct {
	backend RespawnBackend
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan respawnOp
	wg     sync.WaitGroup
}

// NewRespawnWriter starts the writer goroutine. queue is the channel capacity;
// submitters block once it is full.
func NewRespawnWriter(backend RespawnBackend, queue int, timeout time.Duration) *RespawnWriter {
	if queue <= 0 {
		queue = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &RespawnWriter{
		backend: backend,
		timeout: timeout,
		ch:      make(chan respawnOp, queue),
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
	return w
}

func (w *RespawnWriter) loop() {
	for op := range w.ch {
		if op.kind == opBarrier {
			close(op.done)
			continue
		}
		w.apply(op)
	}
}

func (w *RespawnWriter) apply(op respawnOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	rec := op.rec
	switch op.kind {
	case opSave:
		err = w.backend.SaveRespawn(ctx, rec)
	case opDelete:
		err = w.backend.DeleteRespawn(ctx, rec.Type, rec.SpawnID, rec.MapID, rec.InstanceID)
	case opDeleteInstance:
		err = w.backend.DeleteInstanceRespawns(ctx, rec.MapID, rec.InstanceID)
	}
	if err != nil {
		slog.Error("respawn write failed",
			"map", rec.MapID,
			"instance", rec.InstanceID,
			"spawnID", rec.SpawnID,
			"error", err)
	}
}

// submit enqueues op. Returns false once the writer is closed.
func (w *RespawnWriter) submit(op respawnOp) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.ch <- op
	return true
}

// LoadRespawns reads the rows of one map instance after every queued write is applied.
func (w *RespawnWriter) LoadRespawns(ctx context.Context, mapID, instanceID uint32) ([]spawn.RespawnRecord, error) {
	if err := w.Flush(ctx); err != nil {
		return nil, err
	}
	return w.backend.LoadRespawns(ctx, mapID, instanceID)
}

// SaveRespawn queues an upsert of the respawn row.
func (w *RespawnWriter) SaveRespawn(rec spawn.RespawnRecord) {
	if !w.submit(respawnOp{kind: opSave, rec: rec}) {
		slog.Warn("respawn write after close", "map", rec.MapID, "spawnID", rec.SpawnID)
	}
}

// DeleteRespawn queues removal of one respawn row.
func (w *RespawnWriter) DeleteRespawn(t spawn.Type, spawnID uint64, mapID, instanceID uint32) {
	rec := spawn.RespawnRecord{Type: t, SpawnID: spawnID, MapID: mapID, InstanceID: instanceID}
	if !w.submit(respawnOp{kind: opDelete, rec: rec}) {
		slog.Warn("respawn delete after close", "map", mapID, "spawnID", spawnID)
	}
}

// DeleteInstanceRespawns queues removal of every row of a map instance.
func (w *RespawnWriter) DeleteInstanceRespawns(mapID, instanceID uint32) {
	rec := spawn.RespawnRecord{MapID: mapID, InstanceID: instanceID}
	if !w.submit(respawnOp{kind: opDeleteInstance, rec: rec}) {
		slog.Warn("instance respawn delete after close", "map", mapID, "instance", instanceID)
	}
}

// Flush waits until every write submitted before the call is applied.
func (w *RespawnWriter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !w.submit(respawnOp{kind: opBarrier, done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close applies the queued writes and stops the writer. Safe to call twice.
func (w *RespawnWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
	slog.Info("respawn writer stopped")
}
