package models

import "time"

// LogEntryRecord is an append-only log line emitted by a debug session,
// persisted so it survives the process that produced it.
type LogEntryRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"timestamp"`
	Level     string    `gorm:"type:varchar(10);not null" json:"level"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	SessionID string    `gorm:"type:varchar(255);index" json:"session_id,omitempty"`
}

// TableName overrides gorm's pluralized default.
func (LogEntryRecord) TableName() string {
	return "log_entries"
}
