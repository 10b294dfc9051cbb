package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/ragdesk-backend/internal/data/repos/runs"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type IngestionRunRepo = runs.IngestionRunRepo

type Repos struct {
	IngestionRuns IngestionRunRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		IngestionRuns: runs.NewIngestionRunRepo(db, log),
	}
}
