package repository

import (
	"context"
	"time"

	"carbonwatch-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationRepository struct {
	db *gorm.DB
}

func NewVerificationRepository(db *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// ApplyVerification sets the label, flips verify_status and writes an audit
// row in a single database transaction. A missing transaction or detail row
// returns ErrNotFound before anything is written.
func (r *VerificationRepository) ApplyVerification(ctx context.Context, transactionID int64, label, performedBy, reason string) (*models.VerificationAuditLog, error) {
	var audit *models.VerificationAuditLog

	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var current models.Transaction
		if err := db.Select("transaction_id", "label").
			First(&current, "transaction_id = ?", transactionID).Error; err != nil {
			return translate(err)
		}

		var details int64
		if err := db.Model(&models.TransactionDetail{}).
			Where("transaction_id = ?", transactionID).
			Count(&details).Error; err != nil {
			return translate(err)
		}
		if details == 0 {
			return ErrNotFound
		}

		if err := db.Model(&models.Transaction{}).
			Where("transaction_id = ?", transactionID).
			Update("label", label).Error; err != nil {
			return translate(err)
		}

		now := time.Now()
		if err := db.Model(&models.TransactionDetail{}).
			Where("transaction_id = ?", transactionID).
			Updates(map[string]interface{}{"verify_status": true, "verified_at": now}).Error; err != nil {
			return translate(err)
		}

		audit = &models.VerificationAuditLog{
			ID:            uuid.New(),
			TransactionID: transactionID,
			PreviousLabel: current.Label,
			NewLabel:      label,
			PerformedBy:   performedBy,
			Reason:        reason,
			CreatedAt:     now,
		}
		return translate(db.Create(audit).Error)
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}
