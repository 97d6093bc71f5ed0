// Package metrics exposes decision-loop counters as Prometheus collectors.
// All recording methods are safe to call on a nil *Metrics so components can
// run without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "t031a5"

// Metrics contains the runtime collectors.
type Metrics struct {
	CyclesTotal        prometheus.Counter
	CycleErrorsTotal   prometheus.Counter
	CycleDuration      prometheus.Histogram
	Running            prometheus.Gauge
	EmergencyStops     prometheus.Counter
	PluginFailures     *prometheus.CounterVec
	ActionsTotal       *prometheus.CounterVec
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	Responses          *prometheus.CounterVec
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "cycles_total",
			Help:      "Total number of decision cycles run",
		}),
		CycleErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "cycle_errors_total",
			Help:      "Total number of cycles that ended with an error",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "cycle_duration_seconds",
			Help:      "Decision cycle duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "running",
			Help:      "1 while the decision loop is running",
		}),
		EmergencyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "emergency_stops_total",
			Help:      "Total number of emergency stops",
		}),
		PluginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plugin",
			Name:      "failures_total",
			Help:      "Plugin call failures by component, plugin and operation",
		}, []string{"component", "plugin", "op"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "requests_total",
			Help:      "Action requests by target plugin and outcome",
		}, []string{"action", "status"}),
		GenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "generations_total",
			Help:      "Response generation calls by provider and outcome",
		}, []string{"provider", "status"}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "generation_duration_seconds",
			Help:      "Response generation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "responses_total",
			Help:      "Dispatched conversation responses by affect",
		}, []string{"affect"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CyclesTotal, m.CycleErrorsTotal, m.CycleDuration, m.Running, m.EmergencyStops,
		m.PluginFailures, m.ActionsTotal, m.GenerationsTotal, m.GenerationDuration, m.Responses,
	}
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(d.Seconds())
	if failed {
		m.CycleErrorsTotal.Inc()
	}
}

// SetRunning updates the running gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.Running.Set(1)
		return
	}
	m.Running.Set(0)
}

// EmergencyStop counts one emergency stop.
func (m *Metrics) EmergencyStop() {
	if m == nil {
		return
	}
	m.EmergencyStops.Inc()
}

// PluginFailure counts one failed plugin call.
func (m *Metrics) PluginFailure(component, plugin, op string) {
	if m == nil {
		return
	}
	m.PluginFailures.WithLabelValues(component, plugin, op).Inc()
}

// ActionResult counts one executed action request.
func (m *Metrics) ActionResult(action string, success bool) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, status(success)).Inc()
}

// Generation records one response generation call.
func (m *Metrics) Generation(provider string, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(provider, status(success)).Inc()
	m.GenerationDuration.Observe(d.Seconds())
}

// Response counts one dispatched conversation response.
func (m *Metrics) Response(affect string) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(affect).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
