// Package repositories provides data access layer implementations.
// It handles all database operations and data persistence logic.
package repositories

import (
	"fmt"
	"log"
	"os"
	"time"

	"wallettx/internal/config"
	"wallettx/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds the postgres connection string for cfg.
func DSN(cfg config.DBConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)
}

// Open connects to postgres, applies the pool settings and migrates the tables
// owned by service.
func Open(cfg config.DBConfig, service string) (*gorm.DB, error) {
	// Configure GORM logger to ignore "record not found" errors
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  !config.IsProduction(),
		},
	)

	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := Migrate(db, service); err != nil {
		return nil, err
	}
	return db, nil
}

// Models returns the tables owned by service.
func Models(service string) []interface{} {
	switch service {
	case config.WalletService:
		return []interface{}{
			&models.Wallet{},
			&models.LedgerEntry{},
			&models.ProcessedEvent{},
			&models.OutboxMessage{},
		}
	default:
		return []interface{}{
			&models.Transaction{},
			&models.ProcessedEvent{},
			&models.OutboxMessage{},
		}
	}
}

// Migrate auto-migrates the schema of service.
func Migrate(db *gorm.DB, service string) error {
	if err := db.AutoMigrate(Models(service)...); err != nil {
		return fmt.Errorf("failed to migrate %s schema: %w", service, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
