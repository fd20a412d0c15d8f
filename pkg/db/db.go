// Package db opens the Postgres database that holds liquidity baselines.
// Environment variables: DB_HOST, DB_PORT (default 5432), DB_USER,
// DB_PASSWORD, DB_NAME, DB_SSLMODE (default disable) and DB_MIGRATIONS_DIR.
package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// SetupDatabase initializes the database connection and runs migrations
func SetupDatabase(logger *logrus.Logger) (*gorm.DB, error) {
	logger.Debug("Starting database setup")

	dir, err := migrationsDir()
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := RunMigrations(logger, dir); err != nil {
		return nil, err
	}

	logger.Debug("Establishing GORM database connection")

	// Connect to database
	db, err := gorm.Open(postgres.Open(constructDSN()), &gorm.Config{
		Logger: NewGormLogrusLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Database setup completed successfully")
	return db, nil
}
