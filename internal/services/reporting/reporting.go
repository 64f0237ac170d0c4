// Package reporting aggregates transactions for the monitoring dashboard.
package reporting

import (
	"strings"

	"carbonwatch-backend/internal/models"
)

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

type CompanySummary struct {
	models.Company
	TotalVolume      float64 `json:"total_volume"`
	TotalAmount      float64 `json:"total_amount"`
	FlaggedCount     int     `json:"suspicious_count"`
	TransactionCount int     `json:"transaction_count"`
}

type Totals struct {
	TotalVolume  float64 `json:"total_volume"`
	TotalAmount  float64 `json:"total_amount"`
	FlaggedCount int     `json:"suspicious_count"`
}

type StatusCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type MonthlyBucket struct {
	Month      string `json:"month"`
	Suspicious int    `json:"suspicious"`
	RedFlag    int    `json:"redFlag"`
}

// CompanySummaries totals each company's transactions. Companies keep their
// input order; transactions of unknown companies are ignored.
func CompanySummaries(companies []models.Company, txs []models.Transaction) []CompanySummary {
	idx := make(map[string]int, len(companies))
	out := make([]CompanySummary, len(companies))
	for i, c := range companies {
		out[i] = CompanySummary{Company: c}
		idx[c.CompanyID] = i
	}
	for _, t := range txs {
		i, ok := idx[t.CompanyID]
		if !ok {
			continue
		}
		s := &out[i]
		s.TotalVolume += t.CarbonVolume
		s.TotalAmount += t.TransactionAmount
		s.TransactionCount++
		if models.IsFlagged(t.Label) {
			s.FlaggedCount++
		}
	}
	return out
}

func Sum(summaries []CompanySummary) Totals {
	var t Totals
	for _, s := range summaries {
		t.TotalVolume += s.TotalVolume
		t.TotalAmount += s.TotalAmount
		t.FlaggedCount += s.FlaggedCount
	}
	return t
}

// Filter keeps summaries whose name or sector contains query, ignoring case.
func Filter(summaries []CompanySummary, query string) []CompanySummary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return summaries
	}
	out := make([]CompanySummary, 0, len(summaries))
	for _, s := range summaries {
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.Sector), q) {
			out = append(out, s)
		}
	}
	return out
}

// StatusDistribution counts labels. An empty label counts as Normal and
// unknown labels are ignored.
func StatusDistribution(txs []models.Transaction) []StatusCount {
	counts := map[string]int{}
	for _, t := range txs {
		label := t.Label
		if label == "" {
			label = models.LabelNormal
		}
		if models.ValidLabel(label) {
			counts[label]++
		}
	}
	return []StatusCount{
		{Name: models.LabelNormal, Value: counts[models.LabelNormal]},
		{Name: models.LabelSuspicious, Value: counts[models.LabelSuspicious]},
		{Name: models.LabelRedFlag, Value: counts[models.LabelRedFlag]},
	}
}

// MonthlyTrend buckets flagged transactions by calendar month of their
// ingestion timestamp, across all years.
func MonthlyTrend(txs []models.Transaction) []MonthlyBucket {
	out := make([]MonthlyBucket, 12)
	for i, name := range monthNames {
		out[i].Month = name
	}
	for _, t := range txs {
		m := int(t.Timestamp.Month()) - 1
		switch t.Label {
		case models.LabelSuspicious:
			out[m].Suspicious++
		case models.LabelRedFlag:
			out[m].RedFlag++
		}
	}
	return out
}
