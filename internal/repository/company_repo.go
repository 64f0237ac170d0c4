package repository

import (
	"context"

	"carbonwatch-backend/internal/models"

	"gorm.io/gorm"
)

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// Create inserts a company. A reused identifier yields ErrDuplicateID.
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	return translate(r.db.WithContext(ctx).Create(company).Error)
}

func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*models.Company, error) {
	var company models.Company
	err := r.db.WithContext(ctx).First(&company, "company_id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &company, nil
}

// List returns every company ordered by name.
func (r *CompanyRepository) List(ctx context.Context) ([]models.Company, error) {
	var companies []models.Company
	err := r.db.WithContext(ctx).Order("name").Find(&companies).Error
	return companies, translate(err)
}
