// Package spike flags transaction amounts that are statistical outliers
// against a company's recent history.
package spike

import (
	"context"
	"errors"
	"fmt"
	"math"

	"carbonwatch-backend/internal/metrics"
	"carbonwatch-backend/internal/models"
)

// ErrStoreUnavailable is returned when the history cannot be read.
var ErrStoreUnavailable = errors.New("store unavailable")

// HistoryStore supplies recent transactions of a company, ordered by
// transaction hour descending.
type HistoryStore interface {
	RecentByCompany(ctx context.Context, companyID string, limit int) ([]models.Transaction, error)
}

type Config struct {
	HistoryLimit int
	Threshold    float64
	HourWindow   int
	TimeWeight   float64
}

func DefaultConfig() Config {
	return Config{
		HistoryLimit: 10,
		Threshold:    2.5,
		HourWindow:   3,
		TimeWeight:   1.5,
	}
}

type Estimator struct {
	store HistoryStore
	cfg   Config
}

func NewEstimator(store HistoryStore, cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.HourWindow < 0 {
		cfg.HourWindow = def.HourWindow
	}
	if cfg.TimeWeight <= 0 {
		cfg.TimeWeight = def.TimeWeight
	}
	return &Estimator{store: store, cfg: cfg}
}

// Estimate reports whether amount at hour is a spike for the company. With no
// history there is no baseline and the answer is false. A failed history read
// returns false together with an error wrapping ErrStoreUnavailable.
func (e *Estimator) Estimate(ctx context.Context, companyID string, amount float64, hour int) (bool, error) {
	history, err := e.store.RecentByCompany(ctx, companyID, e.cfg.HistoryLimit)
	if err != nil {
		metrics.SpikeEvaluations.WithLabelValues("store_unavailable").Inc()
		return false, fmt.Errorf("%w: reading history for %s: %v", ErrStoreUnavailable, companyID, err)
	}
	if len(history) == 0 {
		metrics.SpikeEvaluations.WithLabelValues("no_history").Inc()
		return false, nil
	}

	spike := Score(history, amount, hour, e.cfg)
	if spike {
		metrics.SpikeEvaluations.WithLabelValues("spike").Inc()
	} else {
		metrics.SpikeEvaluations.WithLabelValues("normal").Inc()
	}
	return spike, nil
}

// Score applies the weighted z-score test to an already fetched history.
func Score(history []models.Transaction, amount float64, hour int, cfg Config) bool {
	if len(history) == 0 {
		return false
	}

	n := float64(len(history))
	var sum float64
	for _, t := range history {
		sum += t.TransactionAmount
	}
	mean := sum / n

	var sq float64
	for _, t := range history {
		d := t.TransactionAmount - mean
		sq += d * d
	}
	sigma := math.Sqrt(sq / n)
	if sigma == 0 {
		sigma = 1
	}
	z := (amount - mean) / sigma

	minDiff := math.MaxInt
	for _, t := range history {
		d := t.TransactionHour - hour
		if d < 0 {
			d = -d
		}
		if d < minDiff {
			minDiff = d
		}
	}
	weight := 1.0
	if minDiff <= cfg.HourWindow {
		weight = cfg.TimeWeight
	}

	return math.Abs(z)*weight > cfg.Threshold
}
