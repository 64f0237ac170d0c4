// Package classifier labels transactions through an external scoring model.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carbonwatch-backend/internal/metrics"
	"carbonwatch-backend/internal/models"

	"golang.org/x/time/rate"
)

// ErrClassification covers a failed call and an unusable prediction.
var ErrClassification = errors.New("classification failed")

// Request is the record sent to the model. Field names are the upload column
// names and must stay in sync with the scoring service.
type Request struct {
	TransactionAmount float64 `json:"Transaction Amount"`
	CarbonVolume      float64 `json:"Carbon Volume"`
	PricePerTon       float64 `json:"Price per Ton"`
	OriginCountry     string  `json:"Origin Country"`
	CrossBorder       bool    `json:"Cross-Border Flag"`
	BuyerIndustry     string  `json:"Buyer Industry"`
	SuddenSpike       bool    `json:"Sudden Transaction Spike"`
	TransactionHour   int     `json:"Transaction Hour"`
	EntityType        string  `json:"Entity Type"`
}

type Explanation struct {
	AISummary        string   `json:"ai_summary"`
	TechnicalReasons []string `json:"technical_reasons"`
}

type Prediction struct {
	Label       string      `json:"label"`
	Explanation Explanation `json:"explanation"`
}

type Classifier interface {
	Classify(ctx context.Context, req Request) (*Prediction, error)
}

// RequestFor builds the classifier payload for a transaction.
func RequestFor(tx *models.Transaction) Request {
	return Request{
		TransactionAmount: tx.TransactionAmount,
		CarbonVolume:      tx.CarbonVolume,
		PricePerTon:       tx.PricePerTon,
		OriginCountry:     tx.OriginCountry,
		CrossBorder:       tx.CrossBorder,
		BuyerIndustry:     tx.BuyerIndustry,
		SuddenSpike:       tx.SuddenSpike,
		TransactionHour:   tx.TransactionHour,
		EntityType:        tx.EntityType,
	}
}

// validate enforces the only check made on model output: a non-empty label.
func validate(p *Prediction) (*Prediction, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no prediction returned", ErrClassification)
	}
	p.Label = strings.TrimSpace(p.Label)
	if p.Label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrClassification)
	}
	if p.Explanation.TechnicalReasons == nil {
		p.Explanation.TechnicalReasons = []string{}
	}
	return p, nil
}

func observe(backend string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ClassifierLatency.WithLabelValues(backend, status).Observe(time.Since(start).Seconds())
}

type rateLimited struct {
	next    Classifier
	limiter *rate.Limiter
}

// WithRateLimit wraps c so that at most perSecond calls start each second.
// A non-positive rate returns c unchanged.
func WithRateLimit(c Classifier, perSecond float64) Classifier {
	if perSecond <= 0 {
		return c
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: c, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *rateLimited) Classify(ctx context.Context, req Request) (*Prediction, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limiter: %v", ErrClassification, err)
	}
	return r.next.Classify(ctx, req)
}
