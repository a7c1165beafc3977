package database

import (
	"fmt"
	"time"

	"github.com/georgi-georgiev/dbgmesh/internal/shared/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New creates a new database connection
func New(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// AutoMigrate runs database migrations for the controller's own persisted
// state: the append-only log stream. Session state itself lives only in
// process memory and does not survive a restart.
func AutoMigrate(db *gorm.DB) error {
	db.Exec(`
		CREATE TABLE IF NOT EXISTS log_entries (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			level VARCHAR(10) NOT NULL,
			message TEXT NOT NULL,
			session_id VARCHAR(255)
		);
		CREATE INDEX IF NOT EXISTS idx_log_entries_session_id ON log_entries(session_id);
		CREATE INDEX IF NOT EXISTS idx_log_entries_timestamp ON log_entries(timestamp);
	`)

	return nil
}
