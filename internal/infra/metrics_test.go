package infra

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordEvent(t *testing.T) {
	m := &Metrics{}

	m.RecordEvent(1000)
	m.RecordEvent(2000)
	m.RecordEvent(3000)

	snap := m.Snapshot()

	if snap.EventsProcessed != 3 {
		t.Errorf("Expected 3 events, got %d", snap.EventsProcessed)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_RecordUpdate(t *testing.T) {
	m := &Metrics{}

	m.RecordUpdate(2*time.Millisecond, 3)
	m.RecordUpdate(4*time.Millisecond, 0)
	m.RecordListenerFailure()

	snap := m.Snapshot()
	if snap.StoreUpdates != 2 || snap.ChangedFields != 3 || snap.ListenerFailures != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.AvgUpdateNs != int64(3*time.Millisecond) {
		t.Errorf("Expected avg update 3ms, got %d", snap.AvgUpdateNs)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := &Metrics{}

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}
	m.RecordFetch(false)
	m.RecordError()
	m.SetBlockTag(42)
	m.RecordAlert()

	m.Reset()

	snap := m.Snapshot()
	if snap.SnapshotFetches != 0 || snap.FetchFailures != 0 || snap.ErrorsTotal != 0 || snap.LastBlockTag != 0 || snap.AlertsRaised != 0 {
		t.Errorf("Reset should clear all metrics: %+v", snap)
	}
}

func TestMetricsCollector(t *testing.T) {
	m := &Metrics{}
	m.RecordFetch(true)
	m.RecordFetch(false)
	m.SetBlockTag(1234)
	m.RecordAlert()

	c := NewMetricsCollector(m)
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	assert.Equal(t, len(c.descs), testutil.CollectAndCount(c))
	assert.Equal(t, 2.0, testutil.ToFloat64(collectorFor(c, "snapshot_fetches_total")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collectorFor(c, "alerts_total")))
	assert.Equal(t, 1234.0, testutil.ToFloat64(collectorFor(c, "block_tag")))
}

// collectorFor narrows c to the single metric with the given short name.
func collectorFor(c *MetricsCollector, name string) prometheus.Collector {
	for _, d := range c.descs {
		if d.name == name {
			return &MetricsCollector{metrics: c.metrics, descs: []metricDesc{d}}
		}
	}
	return &MetricsCollector{metrics: c.metrics}
}
