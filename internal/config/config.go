package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// WorldServer holds all configuration for the world server.
type WorldServer struct {
	LogLevel string `yaml:"log_level"`

	// Persistence
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`

	MetricsAddress string `yaml:"metrics_address"`

	// Content
	CatalogPath string `yaml:"catalog_path"`
	ScriptsDir  string `yaml:"scripts_dir"`
	DataDir     string `yaml:"data_dir"` // terrain + mmaps

	Maps    MapsConfig    `yaml:"maps"`
	Terrain TerrainConfig `yaml:"terrain"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// StorageConfig selects where respawn times and instance locks live.
type StorageConfig struct {
	Driver     string `yaml:"driver"` // postgres | sqlite
	SQLitePath string `yaml:"sqlite_path"`

	// Respawn writes are queued and applied by one goroutine.
	RespawnQueueSize int           `yaml:"respawn_queue_size"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// Visibility is the view distance and notify period of one map kind.
type Visibility struct {
	Distance     float32       `yaml:"distance"`
	NotifyPeriod time.Duration `yaml:"notify_period"`
}

// MapsConfig tunes the map manager and every map it creates.
type MapsConfig struct {
	UpdateInterval time.Duration `yaml:"update_interval"`
	UpdateThreads  int           `yaml:"update_threads"` // maps ticking in parallel
	Workers        int           `yaml:"workers"`        // per-map fan-out
	MaxInstanceID  uint32        `yaml:"max_instance_id"`

	GridUnload      bool          `yaml:"grid_unload"`
	GridUnloadDelay time.Duration `yaml:"grid_unload_delay"`

	Continent    Visibility `yaml:"continent"`
	Instance     Visibility `yaml:"instance"`
	Battleground Visibility `yaml:"battleground"`
	Arena        Visibility `yaml:"arena"`

	InstanceUnloadDelay     time.Duration `yaml:"instance_unload_delay"`
	PendingBindDelay        time.Duration `yaml:"pending_bind_delay"`
	PhaseDeleteDelay        time.Duration `yaml:"phase_delete_delay"`
	RespawnMinCheckInterval time.Duration `yaml:"respawn_min_check_interval"`
	DynamicEscortRespawn    bool          `yaml:"dynamic_escort_respawn"`
}

// TerrainConfig controls terrain sharing and the sweep of unused tiles.
type TerrainConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	EnableMMaps     bool          `yaml:"enable_mmaps"`
}

// DefaultWorldServer returns WorldServer config with sensible defaults.
func DefaultWorldServer() WorldServer {
	return WorldServer{
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "worldcore",
			Password: "worldcore",
			DBName:   "worldcore",
			SSLMode:  "disable",
		},
		Storage: StorageConfig{
			Driver:           DriverPostgres,
			SQLitePath:       "data/world.db",
			RespawnQueueSize: 1024,
			WriteTimeout:     5 * time.Second,
		},
		MetricsAddress: ":9102",
		CatalogPath:    "config/catalog",
		ScriptsDir:     "scripts",
		DataDir:        "data",
		Maps: MapsConfig{
			UpdateInterval:  100 * time.Millisecond,
			UpdateThreads:   4,
			Workers:         4,
			MaxInstanceID:   1 << 24,
			GridUnload:      true,
			GridUnloadDelay: 5 * time.Minute,
			Continent:       Visibility{Distance: 100, NotifyPeriod: time.Second},
			Instance:        Visibility{Distance: 170, NotifyPeriod: time.Second},
			Battleground:    Visibility{Distance: 533, NotifyPeriod: time.Second},
			Arena:           Visibility{Distance: 533, NotifyPeriod: time.Second},

			InstanceUnloadDelay:     30 * time.Minute,
			PendingBindDelay:        time.Minute,
			PhaseDeleteDelay:        time.Minute,
			RespawnMinCheckInterval: 5 * time.Second,
		},
		Terrain: TerrainConfig{
			CleanupInterval: time.Minute,
			EnableMMaps:     true,
		},
	}
}

// LoadWorldServer loads world server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadWorldServer(path string) (WorldServer, error) {
	cfg := DefaultWorldServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c WorldServer) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is empty")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Storage.Driver)
	}
	if c.Maps.UpdateInterval <= 0 {
		return fmt.Errorf("maps.update_interval must be positive, got %s", c.Maps.UpdateInterval)
	}
	if c.Maps.MaxInstanceID == 0 {
		return fmt.Errorf("maps.max_instance_id must be positive")
	}
	return nil
}
