package runs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/ragdesk-backend/internal/domain/ingestion"
	"github.com/yungbote/ragdesk-backend/internal/pkg/dbctx"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type IngestionRunRepo interface {
	Create(dbc dbctx.Context, run *ingestion.IngestionRun) (*ingestion.IngestionRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*ingestion.IngestionRun, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*ingestion.IngestionRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	MarkAbandoned(dbc dbctx.Context, olderThan time.Duration) (int64, error)
}

type ingestionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestionRunRepo(db *gorm.DB, baseLog *logger.Logger) IngestionRunRepo {
	return &ingestionRunRepo{
		db:  db,
		log: baseLog.With("repo", "IngestionRunRepo"),
	}
}

func (r *ingestionRunRepo) Create(dbc dbctx.Context, run *ingestion.IngestionRun) (*ingestion.IngestionRun, error) {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = ingestion.RunStatusRunning
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// GetByID returns nil, nil when no run has the id.
func (r *ingestionRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*ingestion.IngestionRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run ingestion.IngestionRun
	err := dbc.DB(r.db).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *ingestionRunRepo) ListRecent(dbc dbctx.Context, limit int) ([]*ingestion.IngestionRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*ingestion.IngestionRun
	if err := dbc.DB(r.db).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ingestionRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&ingestion.IngestionRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkAbandoned fails runs left in running state by a process that exited
// mid-run.
func (r *ingestionRunRepo) MarkAbandoned(dbc dbctx.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	now := time.Now().UTC()
	res := dbc.DB(r.db).
		Model(&ingestion.IngestionRun{}).
		Where("status = ? AND started_at < ?", ingestion.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":      ingestion.RunStatusFailed,
			"stage":       "failed",
			"error":       "abandoned",
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Warn("marked abandoned ingestion runs", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
