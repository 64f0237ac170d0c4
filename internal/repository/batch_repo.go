package repository

import (
	"context"
	"time"

	"carbonwatch-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *models.IngestionBatch) error {
	return translate(r.db.WithContext(ctx).Create(batch).Error)
}

func (r *BatchRepository) UpdateProgress(ctx context.Context, id uuid.UUID, processed int) error {
	return translate(r.db.WithContext(ctx).
		Model(&models.IngestionBatch{}).
		Where("id = ?", id).
		Update("processed_count", processed).Error)
}

// Complete stores the final counts and warnings of a batch.
func (r *BatchRepository) Complete(ctx context.Context, id uuid.UUID, status string, processed, succeeded, skipped int, warnings datatypes.JSON) error {
	now := time.Now()
	return translate(r.db.WithContext(ctx).
		Model(&models.IngestionBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"processed_count": processed,
			"succeeded_count": succeeded,
			"skipped_count":   skipped,
			"warnings":        warnings,
			"completed_at":    now,
		}).Error)
}

func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.IngestionBatch, error) {
	var batch models.IngestionBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}
