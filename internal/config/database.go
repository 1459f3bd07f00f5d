package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"fleet_tracker/internal/logger"
	"fleet_tracker/internal/models"
)

// OpenDB opens the Postgres connection described by cfg and migrates the schema.
// The handle is owned by the caller; nothing here is kept in package state.
func OpenDB(cfg *Config) (*gorm.DB, error) {
	// Build Data Source Name
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode, cfg.DBTimezone,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.GormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the tracker reads and writes.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Route{},
		&models.Stage{},
		&models.RouteStage{},
		&models.Fleet{},
		&models.FleetRoute{},
		&models.Trip{},
		&models.NotificationReminder{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}
