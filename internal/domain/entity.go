package domain

import (
	"time"
)

// ChangeRecord is one persisted state-change notification.
type ChangeRecord struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Seq        uint64    `gorm:"index" json:"seq"`
	BlockTag   uint64    `json:"block_tag"`
	Fields     string    `json:"fields"`  // Comma-separated field names
	Payload    string    `json:"payload"` // JSON object of the changed fields' new values
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}

// TableName pins the table name independent of the struct name.
func (ChangeRecord) TableName() string {
	return "state_changes"
}
