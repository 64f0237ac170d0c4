package models

import (
	"time"
)

const (
	SectorEnergy        = "Energy"
	SectorManufacturing = "Manufacturing"
	SectorForestry      = "Forestry"
)

// Company owns transactions. The identifier is supplied by the caller.
type Company struct {
	CompanyID string    `gorm:"primaryKey;size:64" json:"company_id"`
	Name      string    `gorm:"index;size:255;not null" json:"nama_perusahaan"`
	Sector    string    `gorm:"index;size:32" json:"sector"`
	Address   string    `json:"address"`
	Contact   string    `json:"contact"`
	TaxID     string    `gorm:"size:64" json:"npwp"`
	Website   string    `json:"website"`
	LogoURL   *string   `json:"gambar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Company) TableName() string { return "company" }

// ValidSector reports whether s is one of the supported sectors.
func ValidSector(s string) bool {
	switch s {
	case SectorEnergy, SectorManufacturing, SectorForestry:
		return true
	}
	return false
}
