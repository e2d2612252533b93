package core

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MetricsSnapshot is a point-in-time read of the running world's health,
// used by the admin /stats surface.
type MetricsSnapshot struct {
	EntityCount      int     `json:"entityCount"`
	LoadedChunks     int     `json:"loadedChunks"`
	RetainedChunks   int     `json:"retainedChunks"`
	SessionCount     int     `json:"sessionCount"`
	TickCount        uint64  `json:"tickCount"`
	EstimatedTPS     float64 `json:"estimatedTps"`
	AverageLagMillis float64 `json:"averageLagMillis"`
	MemAllocBytes    uint64  `json:"memAllocBytes"`
	NumGoroutines    int     `json:"goroutines"`
	Timestamp        int64   `json:"timestamp"`
}

// Metrics wires the world's runtime counters into a dedicated Prometheus
// registry and a structured logger: gauges for live state, a counter for
// errors, a periodic recorder, and an HTTP exposition handler.
type Metrics struct {
	store      *EntityStore
	chunks     *ChunkManager
	sessions   *SessionManager
	scheduler  *TickScheduler
	log        *logrus.Logger

	registry *prometheus.Registry

	entityCountGauge    prometheus.Gauge
	loadedChunksGauge   prometheus.Gauge
	retainedChunksGauge prometheus.Gauge
	sessionCountGauge   prometheus.Gauge
	tickCountGauge      prometheus.Gauge
	tpsGauge            prometheus.Gauge
	lagGauge            prometheus.Gauge
	memAllocGauge       prometheus.Gauge
	goroutinesGauge     prometheus.Gauge
	sessionErrorCounter prometheus.Counter
}

// NewMetrics builds a Metrics collector bound to the running world's
// subsystems. Any of store/chunks/sessions/scheduler may be nil if that
// subsystem has not started yet; snapshots leave those fields at zero.
func NewMetrics(store *EntityStore, chunks *ChunkManager, sessions *SessionManager, scheduler *TickScheduler, log *logrus.Logger) *Metrics {
	if log == nil {
		log = logrus.StandardLogger()
	}
	reg := prometheus.NewRegistry()
	m := &Metrics{store: store, chunks: chunks, sessions: sessions, scheduler: scheduler, log: log, registry: reg}

	m.entityCountGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_entity_count",
		Help: "Number of entities currently in the Entity Store",
	})
	m.loadedChunksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_loaded_chunks",
		Help: "Number of chunks currently loaded",
	})
	m.retainedChunksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_retained_chunks",
		Help: "Number of chunks retained (loaded or cached) in the Chunk Manager",
	})
	m.sessionCountGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_session_count",
		Help: "Number of connected sessions",
	})
	m.tickCountGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_tick_count",
		Help: "Total ticks executed since startup",
	})
	m.tpsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_estimated_tps",
		Help: "Estimated ticks per second over the most recent tick",
	})
	m.lagGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_average_tick_lag_ms",
		Help: "Average tick duration in milliseconds over the retained sample window",
	})
	m.memAllocGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_mem_alloc_bytes",
		Help: "Current heap allocation in bytes",
	})
	m.goroutinesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worldhost_goroutines",
		Help: "Number of running goroutines",
	})
	m.sessionErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worldhost_session_errors_total",
		Help: "Total number of session-level errors logged",
	})

	reg.MustRegister(
		m.entityCountGauge,
		m.loadedChunksGauge,
		m.retainedChunksGauge,
		m.sessionCountGauge,
		m.tickCountGauge,
		m.tpsGauge,
		m.lagGauge,
		m.memAllocGauge,
		m.goroutinesGauge,
		m.sessionErrorCounter,
	)

	return m
}

// RecordSessionError increments the session error counter; transport
// bindings call this whenever a session-level error is logged.
func (m *Metrics) RecordSessionError() {
	m.sessionErrorCounter.Inc()
}

// Snapshot gathers a point-in-time read of every wired subsystem's health.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Timestamp: time.Now().Unix(), NumGoroutines: runtime.NumGoroutine()}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	snap.MemAllocBytes = mem.Alloc

	if m.store != nil {
		snap.EntityCount = m.store.Count()
	}
	if m.chunks != nil {
		snap.LoadedChunks = m.chunks.LoadedCount()
		snap.RetainedChunks = m.chunks.RetainedCount()
	}
	if m.sessions != nil {
		snap.SessionCount = m.sessions.Count()
	}
	if m.scheduler != nil {
		snap.TickCount = m.scheduler.TickCount()
		snap.EstimatedTPS = m.scheduler.EstimatedTPS()
		snap.AverageLagMillis = float64(m.scheduler.AverageLag()) / float64(time.Millisecond)
	}
	return snap
}

// Record captures the current snapshot and updates every Prometheus gauge.
func (m *Metrics) Record() {
	snap := m.Snapshot()
	m.entityCountGauge.Set(float64(snap.EntityCount))
	m.loadedChunksGauge.Set(float64(snap.LoadedChunks))
	m.retainedChunksGauge.Set(float64(snap.RetainedChunks))
	m.sessionCountGauge.Set(float64(snap.SessionCount))
	m.tickCountGauge.Set(float64(snap.TickCount))
	m.tpsGauge.Set(snap.EstimatedTPS)
	m.lagGauge.Set(snap.AverageLagMillis)
	m.memAllocGauge.Set(float64(snap.MemAllocBytes))
	m.goroutinesGauge.Set(float64(snap.NumGoroutines))
}

// Run periodically records metrics until ctx is canceled.
func (m *Metrics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Record()
		case <-ctx.Done():
			return
		}
	}
}

// Handler returns the Prometheus exposition handler for this collector's
// registry; internal/adminhttp's router mounts it at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
