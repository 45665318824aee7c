package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/worldcore/internal/catalog"
	"github.com/udisondev/worldcore/internal/config"
	"github.com/udisondev/worldcore/internal/db"
	"github.com/udisondev/worldcore/internal/db/sqlite"
	"github.com/udisondev/worldcore/internal/instance"
	"github.com/udisondev/worldcore/internal/mapmgr"
	"github.com/udisondev/worldcore/internal/metrics"
	"github.com/udisondev/worldcore/internal/model"
	"github.com/udisondev/worldcore/internal/script"
	"github.com/udisondev/worldcore/internal/spawn"
	"github.com/udisondev/worldcore/internal/terrain"
	"github.com/udisondev/worldcore/internal/transport"
	"github.com/udisondev/worldcore/internal/world"
)

const ConfigPath = "config/worldserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("WORLDCORE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadWorldServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("worldcore starting", "log_level", cfg.LogLevel, "storage", cfg.Storage.Driver)

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	spawns := spawn.NewStore()
	if err := spawns.Load(ctx, cat.Spawns()); err != nil {
		return fmt.Errorf("loading catalog spawns: %w", err)
	}
	if store.spawns != nil {
		if err := spawns.Load(ctx, store.spawns); err != nil {
			return fmt.Errorf("loading database spawns: %w", err)
		}
	}

	locks := instance.NewManager(store.locks, 0)
	if err := locks.Load(ctx); err != nil {
		return fmt.Errorf("loading instance locks: %w", err)
	}

	// Instance respawns survive only as long as a lock references the instance.
	removed, err := store.respawns.DeleteOrphanRespawns(ctx, locks.InstanceIDs())
	if err != nil {
		return fmt.Errorf("deleting orphan respawns: %w", err)
	}
	if removed > 0 {
		slog.Info("orphan respawns deleted", "count", removed)
	}

	scripts := script.NewRegistry()
	n, err := scripts.LoadDir(cfg.ScriptsDir)
	if err != nil {
		return fmt.Errorf("loading scripts: %w", err)
	}
	for _, name := range cat.ScriptNames() {
		if !scripts.Has(name) {
			slog.Warn("map script not found", "script", name)
		}
	}
	slog.Info("scripts loaded", "count", n)

	transports := transport.NewRegistry()
	slog.Info("transport paths loaded", "count", transports.Load(cat.TransportPaths()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	writer := db.NewRespawnWriter(store.respawns, cfg.Storage.RespawnQueueSize, cfg.Storage.WriteTimeout)
	defer writer.Close()

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	terrains := terrain.NewRegistry(terrain.Config{
		DataDir:         cfg.DataDir,
		EnableMMaps:     cfg.Terrain.EnableMMaps,
		CleanupInterval: cfg.Terrain.CleanupInterval,
	})

	mgr := mapmgr.New(mapmgr.Deps{
		Entries:         cat,
		Spawns:          spawns,
		Pools:           spawn.NewPools(spawns.Pools()),
		Terrain:         terrains,
		Respawns:        writer,
		Locks:           locks,
		Scripts:         scriptFactory(scripts),
		Transports:      transports,
		TransportEvents: transportEventLogger{},
		Metrics:         met,
		Shutdown:        stop,
	}, mapConfig(cfg.Maps))

	highest, err := store.maxInstanceID(ctx)
	if err != nil {
		return fmt.Errorf("reading max instance id: %w", err)
	}
	mgr.InitInstanceIDs(max(highest, locks.MaxInstanceID()))
	for _, id := range locks.InstanceIDs() {
		mgr.RegisterInstanceID(id)
	}

	srv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer mgr.UnloadAll()
		if err := mgr.Run(gctx); err != nil {
			return fmt.Errorf("map manager: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting metrics server", "address", cfg.MetricsAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	waitErr := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Storage.WriteTimeout)
	defer cancel()
	if err := writer.Flush(flushCtx); err != nil {
		slog.Error("flushing respawn writes", "error", err)
	}

	if waitErr != nil {
		return fmt.Errorf("server error: %w", waitErr)
	}
	if cause := context.Cause(runCtx); errors.Is(cause, mapmgr.ErrInstanceIDExhausted) {
		return cause
	}
	slog.Info("worldcore stopped")
	return nil
}

// storage is the persistence selected by config.
type storage struct {
	respawns interface {
		db.RespawnBackend
		DeleteOrphanRespawns(ctx context.Context, keep []uint32) (int64, error)
	}
	locks interface {
		instance.Store
		MaxInstanceID(ctx context.Context) (uint32, error)
	}
	// spawns is nil for the sqlite driver; content then comes from the catalog only.
	spawns spawn.Source
	close  func()
}

func (s storage) maxInstanceID(ctx context.Context) (uint32, error) {
	return s.locks.MaxInstanceID(ctx)
}

func openStorage(ctx context.Context, cfg config.WorldServer) (storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return storage{}, fmt.Errorf("opening sqlite storage: %w", err)
		}
		return storage{
			respawns: st.Respawns(),
			locks:    st.InstanceLocks(),
			close:    func() { _ = st.Close() },
		}, nil
	default:
		database, err := db.New(ctx, cfg.Database.DSN())
		if err != nil {
			return storage{}, fmt.Errorf("connecting to database: %w", err)
		}
		slog.Info("database connected")
		if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
			database.Close()
			return storage{}, fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("database migrations applied")
		return storage{
			respawns: database.Respawns(),
			locks:    database.InstanceLocks(),
			spawns:   database.Spawns(),
			close:    database.Close,
		}, nil
	}
}

// scriptFactory builds Lua instance data for maps whose entry names a script.
func scriptFactory(r *script.Registry) world.ScriptFactory {
	return func(name string, m *world.Map) (world.InstanceScript, error) {
		inst, err := r.CreateInstanceData(name, script.Info{
			MapID:      m.ID(),
			InstanceID: m.InstanceID(),
			Difficulty: m.Difficulty(),
		}, m)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
}

type transportEventLogger struct{}

// TransportEvent logs path events; no gameplay consumes them yet.
func (transportEventLogger) TransportEvent(mapID uint32, guid model.GUID, eventID uint32) {
	slog.Debug("transport event", "map", mapID, "transport", guid, "event", eventID)
}

func mapConfig(c config.MapsConfig) mapmgr.Config {
	cfg := mapmgr.DefaultConfig()
	cfg.UpdateInterval = c.UpdateInterval
	cfg.UpdateThreads = c.UpdateThreads
	cfg.MaxInstanceID = c.MaxInstanceID

	m := &cfg.Map
	m.Workers = c.Workers
	m.GridUnload = c.GridUnload
	m.GridUnloadDelay = c.GridUnloadDelay
	m.Continent = world.VisibilitySettings(c.Continent)
	m.Instance = world.VisibilitySettings(c.Instance)
	m.Battleground = world.VisibilitySettings(c.Battleground)
	m.Arena = world.VisibilitySettings(c.Arena)
	m.InstanceUnloadDelay = c.InstanceUnloadDelay
	m.PendingBindDelay = c.PendingBindDelay
	m.PhaseDeleteDelay = c.PhaseDeleteDelay
	m.RespawnMinCheckInterval = c.RespawnMinCheckInterval
	m.DynamicEscortRespawn = c.DynamicEscortRespawn
	return cfg
}

func metricsMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	return mux
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
