package event

import (
	"hliquity_mirror/internal/store"
)

// Type defines the type of event.
type Type uint16

const (
	EvLoad Type = iota + 1
	EvSnapshot
	EvRefresh
)

func (t Type) String() string {
	switch t {
	case EvLoad:
		return "load"
	case EvSnapshot:
		return "snapshot"
	case EvRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Event is the interface for all sequencer events.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // Unix milliseconds at which the reader produced the event
}

func (e BaseEvent) GetSeq() uint64 { return e.Seq }
func (e BaseEvent) GetTs() int64   { return e.Ts }

// LoadEvent carries the first complete snapshot.
type LoadEvent struct {
	BaseEvent
	Base  store.BaseState  `json:"base"`
	Block store.BlockState `json:"block"`
}

func (e LoadEvent) GetType() Type { return EvLoad }

// SnapshotEvent carries a later, possibly partial, snapshot.
type SnapshotEvent struct {
	BaseEvent
	Update store.BaseStateUpdate  `json:"update"`
	Block  store.BlockStateUpdate `json:"block"`
}

func (e SnapshotEvent) GetType() Type { return EvSnapshot }

// RefreshEvent asks the sequencer to re-derive time-dependent state.
type RefreshEvent struct {
	BaseEvent
}

func (e RefreshEvent) GetType() Type { return EvRefresh }
