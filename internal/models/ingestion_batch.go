package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

// IngestionBatch records one upload and its row outcomes.
type IngestionBatch struct {
	ID             uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	CompanyID      string         `gorm:"index;size:64" json:"company_id"`
	Filename       string         `json:"filename"`
	TotalRows      int            `json:"total_rows"`
	ProcessedCount int            `json:"processed_count"`
	SucceededCount int            `json:"succeeded_count"`
	SkippedCount   int            `json:"skipped_count"`
	Status         string         `gorm:"index;size:16" json:"status"`
	Warnings       datatypes.JSON `json:"warnings"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
