package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	LabelNormal     = "Normal"
	LabelSuspicious = "Suspicious"
	LabelRedFlag    = "Red-Flag"
)

// Transaction is a single ingested carbon-credit trade. JSON names follow the
// upload column names so records round-trip with the dashboard unchanged.
type Transaction struct {
	TransactionID     int64      `gorm:"primaryKey;autoIncrement:false" json:"transaction_id"`
	CompanyID         string     `gorm:"index;size:64;not null" json:"company_id"`
	TransactionAmount float64    `json:"Transaction Amount"`
	CarbonVolume      float64    `json:"Carbon Volume"`
	PricePerTon       float64    `json:"Price per Ton"`
	OriginCountry     string     `json:"Origin Country"`
	CrossBorder       bool       `json:"Cross-Border Flag"`
	BuyerIndustry     string     `json:"Buyer Industry"`
	SuddenSpike       bool       `json:"Sudden Transaction Spike"`
	TransactionHour   int        `gorm:"index" json:"Transaction Hour"`
	EntityType        string     `json:"Entity Type"`
	Label             string     `gorm:"index;size:16" json:"Label"`
	Timestamp         time.Time  `json:"Date"`
	BatchID           *uuid.UUID `gorm:"type:char(36);index" json:"batch_id,omitempty"`

	Company *Company           `gorm:"foreignKey:CompanyID;references:CompanyID" json:"-"`
	Detail  *TransactionDetail `gorm:"foreignKey:TransactionID;references:TransactionID" json:"detail,omitempty"`
}

func (Transaction) TableName() string { return "transaction" }

// TransactionDetail holds the classifier explanation and verification state
// for exactly one Transaction.
type TransactionDetail struct {
	TransactionID    int64          `gorm:"primaryKey;autoIncrement:false" json:"transaction_id"`
	VerifyStatus     bool           `gorm:"not null;default:false" json:"verify_status"`
	AISummary        string         `json:"ai_summary"`
	TechnicalReasons datatypes.JSON `json:"technical_reasons"`
	VerifiedAt       *time.Time     `json:"verified_at,omitempty"`
}

func (TransactionDetail) TableName() string { return "transaction_detail" }

// IsFlagged reports whether the label marks a transaction for review.
func IsFlagged(label string) bool {
	return label == LabelSuspicious || label == LabelRedFlag
}

// ValidLabel reports whether label is one of the three recognised labels.
func ValidLabel(label string) bool {
	return label == LabelNormal || IsFlagged(label)
}
