package database

import (
	"fmt"

	"trade-journal-go/internal/config"
	"trade-journal-go/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
// TranslateError maps driver-level unique constraint violations to
// gorm.ErrDuplicatedKey, which the importer relies on to fold concurrent
// duplicate inserts into the "already present" case.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Strategy{},
		&models.Trade{},
		&models.Screenshot{},
		&models.Comment{},
		&models.CoachRequest{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
