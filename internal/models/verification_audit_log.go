package models

import (
	"time"

	"github.com/google/uuid"
)

type VerificationAuditLog struct {
	ID            uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	TransactionID int64     `gorm:"index" json:"transaction_id"`
	PreviousLabel string    `json:"previous_label"`
	NewLabel      string    `json:"new_label"`
	PerformedBy   string    `json:"performed_by"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}
