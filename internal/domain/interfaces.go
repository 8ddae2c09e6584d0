package domain

import "context"

// SnapshotReader is an external reader feeding snapshots into the mirror.
// The mirror never schedules polling itself; the reader owns start and stop.
type SnapshotReader interface {
	Start(ctx context.Context) error
	Stop()
}

// ChangeRepository persists the change notifications emitted by the mirror.
type ChangeRepository interface {
	Save(record *ChangeRecord) error
	Recent(limit int) ([]ChangeRecord, error)
}
