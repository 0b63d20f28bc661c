package db

import (
	"fmt"

	"github.com/zulandar/hoxy/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model persisted by hoxy.
func AllModels() []interface{} {
	return []interface{}{
		&models.StateEntry{},
	}
}

// AutoMigrate creates or updates all state tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
