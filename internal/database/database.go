package database

import (
	"fmt"

	"docsync-api/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to the SQLite file at path (created if missing) and migrates
// the schema. glebarez/sqlite is pure Go, so no CGO is required.
func Open(path string, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Document{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// InitDB opens the database and installs it as the process-wide handle.
func InitDB(path string, level logger.LogLevel) error {
	db, err := Open(path, level)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// LogLevel maps an application log level to gorm's.
func LogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "warn", "info":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

// GetDB returns the database connection
func GetDB() *gorm.DB {
	return DB
}
