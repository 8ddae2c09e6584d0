package event

import (
	"sync"

	"hliquity_mirror/internal/store"
)

// EventPool provides sync.Pool for snapshot event allocation.
// A block-polling reader emits one per block, so pooling keeps GC pressure flat.
//
// Usage:
//
//	ev := AcquireSnapshotEvent()
//	ev.Update.Price = &price
//	// ... hand to the sequencer ...
//	ReleaseSnapshotEvent(ev)  // Return to pool after processing
var snapshotPool = sync.Pool{
	New: func() interface{} {
		return &SnapshotEvent{}
	},
}

// AcquireSnapshotEvent gets a SnapshotEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireSnapshotEvent() *SnapshotEvent {
	return snapshotPool.Get().(*SnapshotEvent)
}

// ReleaseSnapshotEvent returns a SnapshotEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseSnapshotEvent(ev *SnapshotEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.Update = store.BaseStateUpdate{}
	ev.Block = store.BlockStateUpdate{}

	snapshotPool.Put(ev)
}

// RefreshEvent pool
var refreshPool = sync.Pool{
	New: func() interface{} {
		return &RefreshEvent{}
	},
}

// AcquireRefreshEvent gets a RefreshEvent from the pool.
func AcquireRefreshEvent() *RefreshEvent {
	return refreshPool.Get().(*RefreshEvent)
}

// ReleaseRefreshEvent returns a RefreshEvent to the pool.
func ReleaseRefreshEvent(ev *RefreshEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0

	refreshPool.Put(ev)
}

// Release returns a pooled event to its pool. Other event types are ignored.
func Release(ev Event) {
	switch e := ev.(type) {
	case *SnapshotEvent:
		ReleaseSnapshotEvent(e)
	case *RefreshEvent:
		ReleaseRefreshEvent(e)
	}
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
// It acquires and releases a batch of events.
func Warmup() {
	const batchSize = 256

	snapshotEvs := make([]*SnapshotEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		snapshotEvs = append(snapshotEvs, AcquireSnapshotEvent())
	}
	for _, ev := range snapshotEvs {
		ReleaseSnapshotEvent(ev)
	}

	refreshEvs := make([]*RefreshEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		refreshEvs = append(refreshEvs, AcquireRefreshEvent())
	}
	for _, ev := range refreshEvs {
		ReleaseRefreshEvent(ev)
	}
}
