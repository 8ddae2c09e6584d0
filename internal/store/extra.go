package store

import "time"

// ExtraStrategy folds reader-specific state into the store alongside the base snapshot.
type ExtraStrategy[E, U any] interface {
	// Reduce applies update to extra.
	Reduce(extra E, update U) E
	// Diff returns the fields that differ between old and next.
	Diff(old, next E) StateChange
}

// NoExtra is the strategy for readers that carry nothing beyond the base snapshot.
type NoExtra struct{}

func (NoExtra) Reduce(extra struct{}, _ struct{}) struct{} { return extra }
func (NoExtra) Diff(_, _ struct{}) StateChange             { return nil }

const (
	FieldBlockTag       Field = "blockTag"
	FieldBlockTimestamp Field = "blockTimestamp"
)

// BlockState is the extra state of a block-polling reader.
type BlockState struct {
	BlockTag       uint64    `json:"blockTag"`
	BlockTimestamp time.Time `json:"blockTimestamp"`
}

// BlockStateUpdate carries the block a snapshot was read at. Nil fields were not supplied.
type BlockStateUpdate struct {
	BlockTag       *uint64
	BlockTimestamp *time.Time
}

// BlockExtra tracks which block the mirrored state belongs to.
type BlockExtra struct{}

func (BlockExtra) Reduce(extra BlockState, update BlockStateUpdate) BlockState {
	if update.BlockTag != nil {
		extra.BlockTag = *update.BlockTag
	}
	if update.BlockTimestamp != nil && !update.BlockTimestamp.Equal(extra.BlockTimestamp) {
		extra.BlockTimestamp = *update.BlockTimestamp
	}
	return extra
}

func (BlockExtra) Diff(old, next BlockState) StateChange {
	change := StateChange{}
	if old.BlockTag != next.BlockTag {
		change[FieldBlockTag] = next.BlockTag
	}
	if !old.BlockTimestamp.Equal(next.BlockTimestamp) {
		change[FieldBlockTimestamp] = next.BlockTimestamp
	}
	return change
}
