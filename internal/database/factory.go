package database

import (
	"fmt"
	"path/filepath"

	"chunkvault/internal/config"
	"chunkvault/internal/cv"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// In-memory databases are migrated right away since nothing else could ever migrate them.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, hostID string, logger cv.Logger, clock cv.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, hostID+".db"), logger, clock)
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", logger, clock)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
