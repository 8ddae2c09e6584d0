package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability for the mirror.
// Uses atomic operations for thread-safety; MetricsCollector exports it to Prometheus.
type Metrics struct {
	// Counters
	eventsProcessed  atomic.Uint64
	storeUpdates     atomic.Uint64
	changedFields    atomic.Uint64
	listenerFailures atomic.Uint64
	snapshotFetches  atomic.Uint64
	fetchFailures    atomic.Uint64
	errorsTotal      atomic.Uint64
	journalWrites    atomic.Uint64
	feedDropped      atomic.Uint64
	alertsRaised     atomic.Uint64
	cacheWrites      atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	updateSumNs atomic.Int64

	// Gauges
	activeConnections atomic.Int32
	lastBlockTag      atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records an event processing with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordUpdate records one store update and how many fields it changed.
func (m *Metrics) RecordUpdate(elapsed time.Duration, changedFields int) {
	m.storeUpdates.Add(1)
	m.changedFields.Add(uint64(changedFields))
	m.updateSumNs.Add(elapsed.Nanoseconds())
}

// RecordListenerFailure records a listener that panicked during notification.
func (m *Metrics) RecordListenerFailure() {
	m.listenerFailures.Add(1)
}

// RecordFetch records a snapshot fetch attempt.
func (m *Metrics) RecordFetch(ok bool) {
	m.snapshotFetches.Add(1)
	if !ok {
		m.fetchFailures.Add(1)
	}
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordJournalWrite records a persisted change row.
func (m *Metrics) RecordJournalWrite() {
	m.journalWrites.Add(1)
}

// RecordFeedDrop records a feed message dropped for a slow client.
func (m *Metrics) RecordFeedDrop() {
	m.feedDropped.Add(1)
}

// RecordAlert records a risk alert raised by a watcher.
func (m *Metrics) RecordAlert() {
	m.alertsRaised.Add(1)
}

// RecordCacheWrite records a state write to the external cache.
func (m *Metrics) RecordCacheWrite() {
	m.cacheWrites.Add(1)
}

// SetBlockTag sets the block the mirror last observed.
func (m *Metrics) SetBlockTag(tag uint64) {
	m.lastBlockTag.Store(tag)
}

// SetActiveConnections sets the current active connection count.
func (m *Metrics) SetActiveConnections(count int32) {
	m.activeConnections.Store(count)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64
	StoreUpdates      uint64
	ChangedFields     uint64
	ListenerFailures  uint64
	SnapshotFetches   uint64
	FetchFailures     uint64
	ErrorsTotal       uint64
	JournalWrites     uint64
	FeedDropped       uint64
	AlertsRaised      uint64
	CacheWrites       uint64
	AvgLatencyNs      int64
	AvgUpdateNs       int64
	ActiveConnections int32
	LastBlockTag      uint64
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	var avgUpdate int64
	updates := m.storeUpdates.Load()
	if updates > 0 {
		avgUpdate = m.updateSumNs.Load() / int64(updates)
	}

	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		StoreUpdates:      updates,
		ChangedFields:     m.changedFields.Load(),
		ListenerFailures:  m.listenerFailures.Load(),
		SnapshotFetches:   m.snapshotFetches.Load(),
		FetchFailures:     m.fetchFailures.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		JournalWrites:     m.journalWrites.Load(),
		FeedDropped:       m.feedDropped.Load(),
		AlertsRaised:      m.alertsRaised.Load(),
		CacheWrites:       m.cacheWrites.Load(),
		AvgLatencyNs:      avgLatency,
		AvgUpdateNs:       avgUpdate,
		ActiveConnections: m.activeConnections.Load(),
		LastBlockTag:      m.lastBlockTag.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.storeUpdates.Store(0)
	m.changedFields.Store(0)
	m.listenerFailures.Store(0)
	m.snapshotFetches.Store(0)
	m.fetchFailures.Store(0)
	m.errorsTotal.Store(0)
	m.journalWrites.Store(0)
	m.feedDropped.Store(0)
	m.alertsRaised.Store(0)
	m.cacheWrites.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.updateSumNs.Store(0)
	m.activeConnections.Store(0)
	m.lastBlockTag.Store(0)
}
