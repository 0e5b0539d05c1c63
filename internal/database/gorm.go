package database

import (
	"fmt"

	"whatsapp-bridge/internal/config"
	"whatsapp-bridge/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to PostgreSQL and runs migrations.
func Open(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)

	logMode := logger.Silent
	if cfg.IsDevelopment() {
		logMode = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info().Str("db", cfg.DBName).Msg("database ready")
	return db, nil
}

// OpenSQLite opens a sqlite database and runs migrations. Used by tests and
// single-node deployments. Path ":memory:" gives an in-memory store.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema for all bridge models.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Session{},
		&models.SessionCredential{},
		&models.Contact{},
		&models.Message{},
		&models.StatusUpdate{},
		&models.TenantSettings{},
		&models.Customer{},
		&models.Conversation{},
		&models.ConversationMessage{},
		&models.NotificationTemplate{},
		&models.NotificationLog{},
		&models.NotificationQueueItem{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}
	return nil
}
