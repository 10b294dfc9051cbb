package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/ragdesk-backend/internal/domain/ingestion"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&ingestion.IngestionRun{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
