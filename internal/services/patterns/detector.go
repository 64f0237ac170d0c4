// Package patterns summarises risk patterns across a company's flagged
// transactions.
package patterns

import (
	"fmt"
	"math"

	"carbonwatch-backend/internal/models"
)

const (
	CategoryOffHours    = "off-hours"
	CategoryVolume      = "volume-anomaly"
	CategoryPrice       = "price-anomaly"
	CategoryCrossBorder = "cross-border"
	CategorySpike       = "transaction-spike"
)

type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// MaxFindings caps the number of findings returned by Detect.
const MaxFindings = 4

const (
	businessHourStart  = 8
	businessHourEnd    = 18
	volumeMultiple     = 3.0
	priceDeviations    = 2.0
	crossBorderPercent = 70
)

type Finding struct {
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Detect inspects the Suspicious and Red-Flag members of txs and returns at
// most MaxFindings findings in priority order. It never modifies txs.
func Detect(txs []models.Transaction) []Finding {
	flagged := make([]models.Transaction, 0, len(txs))
	for _, t := range txs {
		if models.IsFlagged(t.Label) {
			flagged = append(flagged, t)
		}
	}
	findings := []Finding{}
	if len(flagged) == 0 {
		return findings
	}

	checks := []func([]models.Transaction) (Finding, bool){
		offHours,
		volumeAnomaly,
		priceAnomaly,
		crossBorder,
		spikes,
	}
	for _, check := range checks {
		if f, ok := check(flagged); ok {
			findings = append(findings, f)
		}
	}
	if len(findings) > MaxFindings {
		findings = findings[:MaxFindings]
	}
	return findings
}

func offHours(flagged []models.Transaction) (Finding, bool) {
	n := 0
	for _, t := range flagged {
		if t.TransactionHour < businessHourStart || t.TransactionHour > businessHourEnd {
			n++
		}
	}
	if n == 0 {
		return Finding{}, false
	}
	pct := float64(n) / float64(len(flagged)) * 100
	return Finding{
		Category: CategoryOffHours,
		Message:  fmt.Sprintf("%.1f%% of flagged transactions occurred outside business hours (%d of %d)", pct, n, len(flagged)),
		Severity: SeverityMedium,
	}, true
}

func volumeAnomaly(flagged []models.Transaction) (Finding, bool) {
	var total float64
	for _, t := range flagged {
		total += t.CarbonVolume
	}
	mean := total / float64(len(flagged))

	n := 0
	for _, t := range flagged {
		if t.CarbonVolume > mean*volumeMultiple {
			n++
		}
	}
	if n == 0 {
		return Finding{}, false
	}
	return Finding{
		Category: CategoryVolume,
		Message:  fmt.Sprintf("%d flagged transactions have disproportionate carbon volume (>3x average)", n),
		Severity: SeverityHigh,
	}, true
}

// priceAnomaly takes its baseline from positive prices only but tests every
// flagged member against it, so zero-priced trades can also deviate.
func priceAnomaly(flagged []models.Transaction) (Finding, bool) {
	var prices []float64
	for _, t := range flagged {
		if t.PricePerTon > 0 {
			prices = append(prices, t.PricePerTon)
		}
	}
	if len(prices) == 0 {
		return Finding{}, false
	}
	mean, sigma := meanStdDev(prices)

	n := 0
	for _, t := range flagged {
		if math.Abs(t.PricePerTon-mean) > sigma*priceDeviations {
			n++
		}
	}
	if n == 0 {
		return Finding{}, false
	}
	return Finding{
		Category: CategoryPrice,
		Message:  fmt.Sprintf("%d flagged transactions have an unusual price per ton (deviation >2σ)", n),
		Severity: SeverityHigh,
	}, true
}

func crossBorder(flagged []models.Transaction) (Finding, bool) {
	n := 0
	for _, t := range flagged {
		if t.CrossBorder {
			n++
		}
	}
	if n*100 <= len(flagged)*crossBorderPercent {
		return Finding{}, false
	}
	return Finding{
		Category: CategoryCrossBorder,
		Message:  fmt.Sprintf("Most flagged transactions are cross-border (%d of %d)", n, len(flagged)),
		Severity: SeverityMedium,
	}, true
}

func spikes(flagged []models.Transaction) (Finding, bool) {
	n := 0
	for _, t := range flagged {
		if t.SuddenSpike {
			n++
		}
	}
	if n == 0 {
		return Finding{}, false
	}
	return Finding{
		Category: CategorySpike,
		Message:  fmt.Sprintf("%d flagged transactions were detected as sudden spikes", n),
		Severity: SeverityCritical,
	}, true
}

// meanStdDev returns the mean and population standard deviation of xs.
func meanStdDev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
