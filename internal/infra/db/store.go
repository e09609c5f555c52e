package db

import (
	"fmt"
	"log"

	"incidentproxy/internal/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store wraps the incident database connection. The incident database
// is a secondary store: when neither a postgres DSN nor a sqlite path
// is configured the proxy runs in no-db mode and every repository call
// reports the database as unavailable. Ingestion works regardless.
type Store struct {
	DB *gorm.DB
}

func NewStore(cfg *config.Config) (*Store, error) {
	switch {
	case cfg.PostgresDSN != "":
		gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return newMigrated(gdb)
	case cfg.SQLitePath != "":
		gdb, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return newMigrated(gdb)
	default:
		log.Printf("db: no POSTGRES_DSN or sqlite path set, starting in no-db mode")
		return &Store{DB: nil}, nil
	}
}

func newMigrated(gdb *gorm.DB) (*Store, error) {
	if err := gdb.AutoMigrate(&IncidentModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{DB: gdb}, nil
}
