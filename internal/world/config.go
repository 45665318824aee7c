package world

import "time"

// VisibilitySettings are per-kind visibility distances and notify periods.
type VisibilitySettings struct {
	Distance     float32
	NotifyPeriod time.Duration
}

// Config is the tuning of map lifecycles.
type Config struct {
	// Workers bounds the per-map fan-out pool.
	Workers int

	GridUnload      bool
	GridUnloadDelay time.Duration

	Continent    VisibilitySettings
	Instance     VisibilitySettings
	Battleground VisibilitySettings
	Arena        VisibilitySettings

	// RespawnMinCheckInterval is how often the respawn schedule is polled.
	RespawnMinCheckInterval time.Duration
	// DynamicEscortRespawn lets escort NPCs respawn while every live copy is being escorted.
	DynamicEscortRespawn bool

	InstanceUnloadDelay time.Duration
	PendingBindDelay    time.Duration
	// PhaseDeleteDelay is how long personal-phase objects outlive their owner.
	PhaseDeleteDelay time.Duration
	// PersistTimeout bounds lock writes issued from inside a tick.
	PersistTimeout time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		GridUnload:      true,
		GridUnloadDelay: 5 * time.Minute,
		Continent: VisibilitySettings{
			Distance:     100,
			NotifyPeriod: time.Second,
		},
		Instance: VisibilitySettings{
			Distance:     170,
			NotifyPeriod: time.Second,
		},
		Battleground: VisibilitySettings{
			Distance:     533,
			NotifyPeriod: time.Second,
		},
		Arena: VisibilitySettings{
			Distance:     533,
			NotifyPeriod: time.Second,
		},
		RespawnMinCheckInterval: 5 * time.Second,
		InstanceUnloadDelay:     30 * time.Minute,
		PendingBindDelay:        time.Minute,
		PhaseDeleteDelay:        time.Minute,
		PersistTimeout:          5 * time.Second,
	}
}

func (c Config) visibility(kind MapKind) VisibilitySettings {
	switch kind {
	case KindBattleground:
		return c.Battleground
	case KindArena:
		return c.Arena
	case KindDungeon, KindRaid, KindGarrison:
		return c.Instance
	default:
		return c.Continent
	}
}
