package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hliquity_mirror"

type metricDesc struct {
	name  string
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(MetricsSnapshot) float64
}

// MetricsCollector exports a Metrics instance as Prometheus metrics.
// Values are read from one Snapshot per scrape.
type MetricsCollector struct {
	metrics *Metrics
	descs   []metricDesc
}

func metric(name, help string, kind prometheus.ValueType, value func(MetricsSnapshot) float64) metricDesc {
	fqName := prometheus.BuildFQName(metricsNamespace, "", name)
	return metricDesc{name: name, desc: prometheus.NewDesc(fqName, help, nil, nil), kind: kind, value: value}
}

// NewMetricsCollector creates a collector for m.
func NewMetricsCollector(m *Metrics) *MetricsCollector {
	counter, gauge := prometheus.CounterValue, prometheus.GaugeValue
	return &MetricsCollector{
		metrics: m,
		descs: []metricDesc{
			metric("events_processed_total", "Sequencer events processed.", counter, func(s MetricsSnapshot) float64 { return float64(s.EventsProcessed) }),
			metric("store_updates_total", "Store updates, including refreshes.", counter, func(s MetricsSnapshot) float64 { return float64(s.StoreUpdates) }),
			metric("changed_fields_total", "Top-level fields reported as changed.", counter, func(s MetricsSnapshot) float64 { return float64(s.ChangedFields) }),
			metric("listener_failures_total", "Listeners that panicked during notification.", counter, func(s MetricsSnapshot) float64 { return float64(s.ListenerFailures) }),
			metric("snapshot_fetches_total", "Snapshot fetch attempts.", counter, func(s MetricsSnapshot) float64 { return float64(s.SnapshotFetches) }),
			metric("snapshot_fetch_failures_total", "Snapshot fetch attempts that failed.", counter, func(s MetricsSnapshot) float64 { return float64(s.FetchFailures) }),
			metric("errors_total", "Errors recorded by any component.", counter, func(s MetricsSnapshot) float64 { return float64(s.ErrorsTotal) }),
			metric("journal_writes_total", "State changes persisted to the journal.", counter, func(s MetricsSnapshot) float64 { return float64(s.JournalWrites) }),
			metric("feed_dropped_total", "Feed messages dropped for slow clients.", counter, func(s MetricsSnapshot) float64 { return float64(s.FeedDropped) }),
			metric("alerts_total", "Risk alerts raised by watchers.", counter, func(s MetricsSnapshot) float64 { return float64(s.AlertsRaised) }),
			metric("cache_writes_total", "State writes to the external cache.", counter, func(s MetricsSnapshot) float64 { return float64(s.CacheWrites) }),
			metric("event_latency_avg_seconds", "Average sequencer event latency.", gauge, func(s MetricsSnapshot) float64 { return float64(s.AvgLatencyNs) / 1e9 }),
			metric("update_latency_avg_seconds", "Average store update latency.", gauge, func(s MetricsSnapshot) float64 { return float64(s.AvgUpdateNs) / 1e9 }),
			metric("feed_connections", "Connected feed clients.", gauge, func(s MetricsSnapshot) float64 { return float64(s.ActiveConnections) }),
			metric("block_tag", "Block the mirror last observed.", gauge, func(s MetricsSnapshot) float64 { return float64(s.LastBlockTag) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()
	for _, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.value(snap))
	}
}
