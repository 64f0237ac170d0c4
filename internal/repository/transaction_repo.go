package repository

import (
	"context"

	"carbonwatch-backend/internal/models"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// RecentByCompany returns up to limit transactions of the company ordered by
// transaction hour, latest hour first. Hour of day stands in for recency.
func (r *TransactionRepository) RecentByCompany(ctx context.Context, companyID string, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("transaction_hour DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, translate(err)
}

// ListByCompany returns the full transaction history of a company, newest first.
func (r *TransactionRepository) ListByCompany(ctx context.Context, companyID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("timestamp DESC").
		Find(&txs).Error
	return txs, translate(err)
}

func (r *TransactionRepository) ListAll(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).Find(&txs).Error
	return txs, translate(err)
}

// GetWithDetail loads a transaction together with its detail row.
func (r *TransactionRepository) GetWithDetail(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Detail").
		First(&tx, "transaction_id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

// CreateWithDetail inserts the transaction and its detail in one database
// transaction. Either both rows exist afterwards or neither does. An
// identifier already in use yields ErrDuplicateID and nothing is overwritten.
func (r *TransactionRepository) CreateWithDetail(ctx context.Context, tx *models.Transaction, detail *models.TransactionDetail) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Omit("Company", "Detail").Create(tx).Error; err != nil {
			return translate(err)
		}
		detail.TransactionID = tx.TransactionID
		if err := db.Create(detail).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

// Exists reports whether a transaction with the identifier is stored.
func (r *TransactionRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("transaction_id = ?", id).
		Count(&n).Error
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}
