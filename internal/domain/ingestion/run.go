package ingestion

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TriggerWebhook = "webhook"
	TriggerCLI     = "cli"
	TriggerWatch   = "watch"
)

const (
	RunStatusRunning     = "running"
	RunStatusSucceeded   = "succeeded"
	RunStatusNothingToDo = "nothing_to_do"
	RunStatusNoMatch     = "no_match"
	RunStatusFailed      = "failed"
)

// IngestionRun is the ledger row for one pipeline run. Columns avoid
// Postgres-only types so the same model migrates on sqlite.
type IngestionRun struct {
	ID              uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	Trigger         string         `gorm:"column:trigger;not null;index" json:"trigger"`
	FileName        string         `gorm:"column:file_name;index" json:"file_name,omitempty"`
	SourcePath      string         `gorm:"column:source_path" json:"source_path"`
	IndexName       string         `gorm:"column:index_name;not null" json:"index_name"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	Stage           string         `gorm:"column:stage;not null" json:"stage"`
	DocumentsLoaded int            `gorm:"column:documents_loaded;not null;default:0" json:"documents_loaded"`
	ChunksProduced  int            `gorm:"column:chunks_produced;not null;default:0" json:"chunks_produced"`
	RecordsWritten  int            `gorm:"column:records_written;not null;default:0" json:"records_written"`
	Error           string         `gorm:"column:error" json:"error,omitempty"`
	Outcomes        datatypes.JSON `gorm:"column:outcomes" json:"outcomes"`
	StartedAt       time.Time      `gorm:"not null;index" json:"started_at"`
	FinishedAt      *time.Time     `gorm:"index" json:"finished_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (IngestionRun) TableName() string { return "ingestion_run" }

func (r *IngestionRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
