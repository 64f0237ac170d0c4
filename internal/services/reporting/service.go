package reporting

import (
	"context"

	"carbonwatch-backend/internal/metrics"
	"carbonwatch-backend/internal/models"
	"carbonwatch-backend/internal/services/patterns"
)

type CompanyStore interface {
	GetByID(ctx context.Context, id string) (*models.Company, error)
	List(ctx context.Context) ([]models.Company, error)
}

type TransactionStore interface {
	ListByCompany(ctx context.Context, companyID string) ([]models.Transaction, error)
	ListAll(ctx context.Context) ([]models.Transaction, error)
}

type Dashboard struct {
	Companies []CompanySummary `json:"companies"`
	Totals    Totals           `json:"totals"`
}

type CompanyOverview struct {
	Summary      CompanySummary     `json:"company"`
	Status       []StatusCount      `json:"status_distribution"`
	MonthlyTrend []MonthlyBucket    `json:"monthly_trend"`
	Findings     []patterns.Finding `json:"findings"`
}

type Service struct {
	companies    CompanyStore
	transactions TransactionStore
}

func NewService(companies CompanyStore, transactions TransactionStore) *Service {
	return &Service{companies: companies, transactions: transactions}
}

// Dashboard lists every company with its totals. Totals always cover all
// companies; search only narrows the list.
func (s *Service) Dashboard(ctx context.Context, search string) (*Dashboard, error) {
	companies, err := s.companies.List(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	summaries := CompanySummaries(companies, txs)
	return &Dashboard{
		Companies: Filter(summaries, search),
		Totals:    Sum(summaries),
	}, nil
}

func (s *Service) Overview(ctx context.Context, companyID string) (*CompanyOverview, error) {
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return &CompanyOverview{
		Summary:      CompanySummaries([]models.Company{*company}, txs)[0],
		Status:       StatusDistribution(txs),
		MonthlyTrend: MonthlyTrend(txs),
		Findings:     detect(txs),
	}, nil
}

// Patterns runs the anomaly detector over a company's full history.
func (s *Service) Patterns(ctx context.Context, companyID string) ([]patterns.Finding, error) {
	if _, err := s.companies.GetByID(ctx, companyID); err != nil {
		return nil, err
	}
	txs, err := s.transactions.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return detect(txs), nil
}

func detect(txs []models.Transaction) []patterns.Finding {
	findings := patterns.Detect(txs)
	for _, f := range findings {
		metrics.PatternFindings.WithLabelValues(f.Category).Inc()
	}
	return findings
}
