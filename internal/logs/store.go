// Package logs is the append-only log stream of spec §3 "Log entry": the
// control loop's Log() sink, backed by the storage/repository layer, plus
// the `get_logs`/`clear_logs` front-end operations of spec §6.1.
package logs

import (
	"time"

	"github.com/georgi-georgiev/dbgmesh/internal/storage/models"
	"github.com/georgi-georgiev/dbgmesh/internal/storage/repository"
	"go.uber.org/zap"
)

// Entry is the UI-facing view of one log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
}

// Store persists the log stream and tees every entry to the service's own
// structured logger, so a control-loop failure shows up in both the
// front-end's log pane and the operator-facing zap output.
type Store struct {
	repo   *repository.LogRepository
	logger *zap.Logger
}

// NewStore wires a Store from its repository and the ambient zap logger.
func NewStore(repo *repository.LogRepository, logger *zap.Logger) *Store {
	return &Store{repo: repo, logger: logger}
}

// Log implements controlloop.LogSink: it persists one entry (best-effort —
// a persistence failure is logged and swallowed, never surfaced to the
// control loop) and tees it to zap at the matching level.
func (s *Store) Log(sessionID, level, message string) {
	entry := &models.LogEntryRecord{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		SessionID: sessionID,
	}

	if err := s.repo.Create(entry); err != nil {
		s.logger.Warn("failed to persist log entry", zap.Error(err), zap.String("session_id", sessionID))
	}

	fields := []zap.Field{zap.String("session_id", sessionID)}
	switch level {
	case "ERROR":
		s.logger.Error(message, fields...)
	case "WARNING":
		s.logger.Warn(message, fields...)
	case "DEBUG":
		s.logger.Debug(message, fields...)
	default:
		s.logger.Info(message, fields...)
	}
}

// List returns log entries, most recent first, optionally scoped to a
// session and capped at a count (0 = unbounded).
func (s *Store) List(sessionID string, limit int) ([]Entry, error) {
	records, err := s.repo.List(repository.LogFilter{SessionID: sessionID, Limit: limit})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = Entry{Timestamp: r.Timestamp, Level: r.Level, Message: r.Message, SessionID: r.SessionID}
	}
	return entries, nil
}

// Clear deletes log entries, optionally scoped to a single session.
func (s *Store) Clear(sessionID string) error {
	return s.repo.Clear(sessionID)
}
