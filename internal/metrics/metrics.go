// Package metrics exposes change-watch activity as Prometheus collectors.
// Batch runs write them to a node-exporter textfile; long-running modes
// serve them over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the Prometheus namespace of every collector.
	Namespace = "changewatch"
	// Subsystem groups the detection collectors.
	Subsystem = "detector"
)

// Cycle outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds every collector.
type Metrics struct {
	reg *prometheus.Registry

	CyclesTotal          *prometheus.CounterVec
	ChangesTotal         *prometheus.CounterVec
	SkippedLinesTotal    *prometheus.CounterVec
	SnapshotWritesTotal  *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec
	CycleDurationSeconds *prometheus.HistogramVec
	RecordsCurrent       *prometheus.GaugeVec
	LastSuccessTimestamp *prometheus.GaugeVec
	RunsTotal            *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{reg: reg}

	m.CyclesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "cycles_total",
		Help: "Detection cycles by source and outcome.",
	}, []string{"source", "outcome"})

	m.ChangesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "changes_total",
		Help: "Records reported as added, removed or changed.",
	}, []string{"source", "kind"})

	m.SkippedLinesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "skipped_lines_total",
		Help: "Malformed input lines skipped by the loader.",
	}, []string{"source"})

	m.SnapshotWritesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "snapshot",
		Name: "writes_total",
		Help: "Snapshot writes by outcome.",
	}, []string{"source", "outcome"})

	m.NotificationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "notify",
		Name: "notifications_total",
		Help: "Notifications by kind and outcome.",
	}, []string{"kind", "outcome"})

	m.CycleDurationSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name:    "cycle_duration_seconds",
		Help:    "Duration of one detection cycle.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"source"})

	m.RecordsCurrent = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "records_current",
		Help: "Records in the latest loaded batch.",
	}, []string{"source"})

	m.LastSuccessTimestamp = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: Subsystem,
		Name: "last_success_timestamp_seconds",
		Help: "Unix time of the last successful cycle.",
	}, []string{"source"})

	m.RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace, Subsystem: "monitor",
		Name: "runs_total",
		Help: "Full passes over all sources by outcome.",
	}, []string{"outcome"})

	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// CycleSucceeded records a completed cycle.
func (m *Metrics) CycleSucceeded(source string, added, removed, changed, skipped, records int, persisted bool, d time.Duration) {
	m.CyclesTotal.WithLabelValues(source, OutcomeSuccess).Inc()
	m.ChangesTotal.WithLabelValues(source, "added").Add(float64(added))
	m.ChangesTotal.WithLabelValues(source, "removed").Add(float64(removed))
	m.ChangesTotal.WithLabelValues(source, "changed").Add(float64(changed))
	m.SkippedLinesTotal.WithLabelValues(source).Add(float64(skipped))
	m.RecordsCurrent.WithLabelValues(source).Set(float64(records))
	m.CycleDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
	m.LastSuccessTimestamp.WithLabelValues(source).SetToCurrentTime()
	m.SnapshotWritesTotal.WithLabelValues(source, outcome(persisted)).Inc()
}

// CycleFailed records an aborted cycle.
func (m *Metrics) CycleFailed(source string, d time.Duration) {
	m.CyclesTotal.WithLabelValues(source, OutcomeFailure).Inc()
	m.CycleDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// Notified records a notification attempt.
func (m *Metrics) Notified(kind string, ok bool) {
	m.NotificationsTotal.WithLabelValues(kind, outcome(ok)).Inc()
}

// RunFinished records a full pass.
func (m *Metrics) RunFinished(ok bool) {
	m.RunsTotal.WithLabelValues(outcome(ok)).Inc()
}

// WriteTextfile writes the current values in the text exposition format,
// atomically, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

// Handler serves the collectors over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
