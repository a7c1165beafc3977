package repository

import (
	"time"

	"github.com/georgi-georgiev/dbgmesh/internal/storage/models"
	"gorm.io/gorm"
)

// LogRepository persists the append-only log stream emitted by control loops.
type LogRepository struct {
	db *gorm.DB
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Create appends a single log entry, stamping the timestamp if the caller
// left it zero.
func (r *LogRepository) Create(entry *models.LogEntryRecord) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return r.db.Create(entry).Error
}

// LogFilter narrows List to a session and/or a result count.
type LogFilter struct {
	SessionID string
	Limit     int
}

// List returns log entries, most recent first, optionally scoped to a
// session and capped at a count.
func (r *LogRepository) List(filter LogFilter) ([]models.LogEntryRecord, error) {
	query := r.db.Model(&models.LogEntryRecord{})

	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}

	query = query.Order("timestamp DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []models.LogEntryRecord
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}

// Clear deletes log entries, optionally scoped to a single session. An
// empty sessionID clears the entire log stream.
func (r *LogRepository) Clear(sessionID string) error {
	query := r.db.Session(&gorm.Session{AllowGlobalUpdate: true})

	if sessionID != "" {
		query = r.db.Where("session_id = ?", sessionID)
	}

	return query.Delete(&models.LogEntryRecord{}).Error
}
