// Package db constructs the *gorm.DB connections internal/permissions'
// GormStore persists through: Postgres in production, an in-process SQLite
// file for tests and local development. It carries no schema of its own —
// AutoMigrate for the hierarchy/grant/audit tables runs from
// permissions.NewGormStore, letting the service that owns the tables own
// their migration rather than a central schema file.
package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgresDB opens a Postgres connection from dsn with a custom gorm
// logger and a UTC clock.
func NewPostgresDB(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect postgres: %w", err)
	}
	if err := db.Use(metricsPlugin{}); err != nil {
		return nil, fmt.Errorf("db: register metrics plugin: %w", err)
	}
	return db, nil
}

// NewSQLiteDB opens a pure-Go (no cgo) SQLite database at path, the store
// backing tests and single-process local development.
func NewSQLiteDB(path string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect sqlite: %w", err)
	}
	if err := db.Use(metricsPlugin{}); err != nil {
		return nil, fmt.Errorf("db: register metrics plugin: %w", err)
	}
	return db, nil
}
