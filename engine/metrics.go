package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	actions        *prometheus.CounterVec
	reverts        prometheus.Counter
	effects        *prometheus.CounterVec
	effectCPUDelta prometheus.Histogram
	ruleMatches    *prometheus.CounterVec
	ruleDropped    prometheus.Counter
	eventsDropped  prometheus.Counter
	sampleDuration prometheus.Histogram
	processes      prometheus.Gauge
	ledgerEntries  prometheus.Gauge
	pending        prometheus.Gauge
	governed       prometheus.Gauge
	healthWindows  prometheus.Gauge
	evicted        *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xgov_actions_total",
			Help: "Actions executed by kind, outcome status and source",
		}, []string{"kind", "status", "source"}),
		reverts: f.NewCounter(prometheus.CounterOpts{
			Name: "xgov_reverts_total",
			Help: "Ledger entries restored by revert",
		}),
		effects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xgov_effects_finalized_total",
			Help: "Effect measurements finalized by action label",
		}, []string{"action"}),
		effectCPUDelta: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "xgov_effect_cpu_delta_percent",
			Help:    "CPU percent change measured after an action",
			Buckets: []float64{-50, -20, -10, -5, -1, 0, 1, 5, 10, 20, 50},
		}),
		ruleMatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xgov_rule_matches_total",
			Help: "Rule matches by rule action",
		}, []string{"action"}),
		ruleDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "xgov_rule_dispatch_dropped_total",
			Help: "Rule dispatches dropped by the rate limiter",
		}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "xgov_events_dropped_total",
			Help: "Events not delivered to a slow subscriber",
		}),
		sampleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "xgov_sample_duration_seconds",
			Help:    "Process sampling duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		processes: f.NewGauge(prometheus.GaugeOpts{
			Name: "xgov_processes",
			Help: "Processes in the latest snapshot",
		}),
		ledgerEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "xgov_ledger_entries",
			Help: "Entries held by the undo ledger",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "xgov_pending_baselines",
			Help: "Effect baselines awaiting finalization",
		}),
		governed: f.NewGauge(prometheus.GaugeOpts{
			Name: "xgov_governed_processes",
			Help: "Processes currently demoted by the governor",
		}),
		healthWindows: f.NewGauge(prometheus.GaugeOpts{
			Name: "xgov_health_windows",
			Help: "Processes with a health trend window",
		}),
		evicted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "xgov_evicted_total",
			Help: "Per-pid state evicted for exited processes",
		}, []string{"store"}),
	}
}

func (m *Metrics) action(kind, status, source string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, status, source).Inc()
}

func (m *Metrics) revert(n int) {
	if m == nil {
		return
	}
	m.reverts.Add(float64(n))
}

func (m *Metrics) effect(action string, dCPU float64) {
	if m == nil {
		return
	}
	m.effects.WithLabelValues(action).Inc()
	m.effectCPUDelta.Observe(dCPU)
}

func (m *Metrics) ruleMatch(action string) {
	if m == nil {
		return
	}
	m.ruleMatches.WithLabelValues(action).Inc()
}

func (m *Metrics) ruleDrop() {
	if m == nil {
		return
	}
	m.ruleDropped.Inc()
}

func (m *Metrics) eventDrop() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) sample(d time.Duration, n int) {
	if m == nil {
		return
	}
	m.sampleDuration.Observe(d.Seconds())
	m.processes.Set(float64(n))
}

func (m *Metrics) state(ledger, pending, governed, windows int) {
	if m == nil {
		return
	}
	m.ledgerEntries.Set(float64(ledger))
	m.pending.Set(float64(pending))
	m.governed.Set(float64(governed))
	m.healthWindows.Set(float64(windows))
}

func (m *Metrics) evict(store string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evicted.WithLabelValues(store).Add(float64(n))
}
