// Package metrics exposes world-core state to Prometheus.
// Every method is safe on a nil *Metrics so callers never need to check.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "worldcore"

// Metrics holds the prometheus collectors of the world server.
type Metrics struct {
	maps              *prometheus.GaugeVec
	grids             prometheus.Gauge
	gridLoads         prometheus.Counter
	gridUnloads       prometheus.Counter
	players           prometheus.Gauge
	pendingRespawns   prometheus.Gauge
	respawnsProcessed prometheus.Counter
	instanceIDs       prometheus.Gauge
	tickDuration      prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		maps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "maps_live",
			Help:      "Live maps by kind.",
		}, []string{"kind"}),
		grids: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grids_loaded",
			Help:      "Grids currently loaded across all maps.",
		}),
		gridLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_loads_total",
			Help:      "Grids created.",
		}),
		gridUnloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_unloads_total",
			Help:      "Grids unloaded.",
		}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players",
			Help:      "Players present on maps.",
		}),
		pendingRespawns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "respawns_pending",
			Help:      "Scheduled respawns across all maps.",
		}),
		respawnsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "respawns_processed_total",
			Help:      "Respawns materialized.",
		}),
		instanceIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_ids_in_use",
			Help:      "Allocated instance ids.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "map_update_seconds",
			Help:      "Duration of one map update.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
	}
	reg.MustRegister(m.maps, m.grids, m.gridLoads, m.gridUnloads, m.players,
		m.pendingRespawns, m.respawnsProcessed, m.instanceIDs, m.tickDuration)
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// MapCreated counts a new map of the given kind.
func (m *Metrics) MapCreated(kind string) {
	if m == nil {
		return
	}
	m.maps.WithLabelValues(kind).Inc()
}

// MapDestroyed counts a destroyed map of the given kind.
func (m *Metrics) MapDestroyed(kind string) {
	if m == nil {
		return
	}
	m.maps.WithLabelValues(kind).Dec()
}

// GridLoaded increments the loaded grid gauge.
func (m *Metrics) GridLoaded() {
	if m == nil {
		return
	}
	m.grids.Inc()
	m.gridLoads.Inc()
}

// GridUnloaded decrements the loaded grid gauge.
func (m *Metrics) GridUnloaded() {
	if m == nil {
		return
	}
	m.grids.Dec()
	m.gridUnloads.Inc()
}

// PlayersChanged adds delta to the player gauge.
func (m *Metrics) PlayersChanged(delta int) {
	if m == nil {
		return
	}
	m.players.Add(float64(delta))
}

// RespawnsPending adds delta to the pending respawn gauge.
func (m *Metrics) RespawnsPending(delta int) {
	if m == nil {
		return
	}
	m.pendingRespawns.Add(float64(delta))
}

// RespawnProcessed counts a materialized respawn.
func (m *Metrics) RespawnProcessed() {
	if m == nil {
		return
	}
	m.respawnsProcessed.Inc()
}

// InstanceIDsInUse sets the number of reserved instance ids.
func (m *Metrics) InstanceIDsInUse(n int) {
	if m == nil {
		return
	}
	m.instanceIDs.Set(float64(n))
}

// ObserveMapUpdate records the duration of one map tick.
func (m *Metrics) ObserveMapUpdate(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}
