package repository

import (
	"fmt"

	"discussion-facilitator/backend/conversation/models"

	"gorm.io/gorm"
)

// Migrate creates or updates the log and crossing tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Message{}, &models.Crossing{}); err != nil {
		return fmt.Errorf("migrate conversation tables: %w", err)
	}
	return nil
}
