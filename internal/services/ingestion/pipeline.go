// Package ingestion turns uploaded transaction tables into labelled,
// persisted transactions.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"carbonwatch-backend/internal/logger"
	"carbonwatch-backend/internal/metrics"
	"carbonwatch-backend/internal/models"
	"carbonwatch-backend/internal/repository"
	"carbonwatch-backend/internal/services/classifier"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

const (
	// MaxTransactionID bounds the random identifier range [1, MaxTransactionID].
	MaxTransactionID = 1_000_000
	maxIDAttempts    = 5
	progressInterval = 25
	// finishedProgressTTL is how long a finished batch stays readable from
	// memory when it could not be handed over to the batch store.
	finishedProgressTTL = 15 * time.Minute
)

type TransactionStore interface {
	CreateWithDetail(ctx context.Context, tx *models.Transaction, detail *models.TransactionDetail) error
}

type SpikeEstimator interface {
	Estimate(ctx context.Context, companyID string, amount float64, hour int) (bool, error)
}

type BatchStore interface {
	Create(ctx context.Context, batch *models.IngestionBatch) error
	UpdateProgress(ctx context.Context, id uuid.UUID, processed int) error
	Complete(ctx context.Context, id uuid.UUID, status string, processed, succeeded, skipped int, warnings datatypes.JSON) error
}

type Upload struct {
	Filename string
	Data     []byte
}

type Result struct {
	BatchID      uuid.UUID
	TotalRows    int
	Transactions []models.Transaction
	Errors       []*RowError
}

func (r *Result) Warnings() []Warning {
	out := make([]Warning, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Warning())
	}
	return out
}

// Progress is the in-memory view of a running batch.
type Progress struct {
	ProcessedCount int    `json:"processed_count"`
	Total          int    `json:"total"`
	Status         string `json:"status"`
}

type Pipeline struct {
	store      TransactionStore
	spike      SpikeEstimator
	classifier classifier.Classifier
	batches    BatchStore
	log        zerolog.Logger
	now        func() time.Time
	newID      func() int64
	locks      *keyedMutex
	progress   sync.Map // uuid.UUID -> progressEntry
}

// progressEntry expires only once the batch has finished.
type progressEntry struct {
	Progress
	expires time.Time
}

func (e progressEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

type Option func(*Pipeline)

func WithBatchStore(b BatchStore) Option { return func(p *Pipeline) { p.batches = b } }

func WithLogger(l zerolog.Logger) Option { return func(p *Pipeline) { p.log = l } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

func WithIDGenerator(gen func() int64) Option { return func(p *Pipeline) { p.newID = gen } }

func NewPipeline(store TransactionStore, estimator SpikeEstimator, c classifier.Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		spike:      estimator,
		classifier: c,
		log:        zerolog.Nop(),
		now:        time.Now,
		newID:      randomTransactionID,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func randomTransactionID() int64 {
	return rand.Int64N(MaxTransactionID) + 1
}

// Progress returns the last known progress of a batch started by this process.
func (p *Pipeline) Progress(batchID uuid.UUID) (Progress, bool) {
	v, ok := p.progress.Load(batchID)
	if !ok {
		return Progress{}, false
	}
	entry := v.(progressEntry)
	if entry.expired(p.now()) {
		p.progress.CompareAndDelete(batchID, v)
		return Progress{}, false
	}
	return entry.Progress, true
}

func (p *Pipeline) sweepProgress() {
	now := p.now()
	p.progress.Range(func(k, v any) bool {
		if v.(progressEntry).expired(now) {
			p.progress.CompareAndDelete(k, v)
		}
		return true
	})
}

// Ingest processes every data row of the upload in order. Row failures are
// collected on the result; only an absent company, an unparseable table or a
// cancelled context return an error. Uploads for the same company are
// serialised so each spike estimate sees the rows committed before it.
func (p *Pipeline) Ingest(ctx context.Context, upload Upload, company *models.Company) (*Result, error) {
	if company == nil || company.CompanyID == "" {
		return nil, fmt.Errorf("%w: company is required", ErrValidation)
	}
	tbl, err := parseTable(upload.Data)
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(company.CompanyID)
	defer unlock()

	start := time.Now()
	defer func() { metrics.IngestionDuration.Observe(time.Since(start).Seconds()) }()

	res := &Result{BatchID: uuid.New(), TotalRows: len(tbl.rows)}
	log := logger.WithFields(p.log, map[string]interface{}{
		"company_id": company.CompanyID,
		"batch_id":   res.BatchID.String(),
	})
	log.Info().Str("filename", upload.Filename).Int("rows", res.TotalRows).Msg("ingestion started")

	p.startBatch(ctx, log, res, company.CompanyID, upload.Filename)

	for i, r := range tbl.rows {
		if err := ctx.Err(); err != nil {
			p.finishBatch(log, res, models.BatchStatusFailed)
			return res, err
		}

		tx, err := p.processRow(ctx, log, tbl, r, company.CompanyID, res)
		if err != nil {
			rowErr := &RowError{Row: r.num, Kind: kindOf(err), Err: err}
			res.Errors = append(res.Errors, rowErr)
			metrics.IngestedRows.WithLabelValues(string(rowErr.Kind)).Inc()
			logRowError(log, rowErr)
		} else {
			res.Transactions = append(res.Transactions, *tx)
			metrics.IngestedRows.WithLabelValues("persisted").Inc()
		}

		p.trackProgress(ctx, log, res.BatchID, i+1, res.TotalRows)
	}

	p.finishBatch(log, res, models.BatchStatusCompleted)
	log.Info().
		Int("persisted", len(res.Transactions)).
		Int("warnings", len(res.Errors)).
		Dur("duration", time.Since(start)).
		Msg("ingestion finished")
	return res, nil
}

func (p *Pipeline) processRow(ctx context.Context, log zerolog.Logger, tbl *table, r row, companyID string, res *Result) (*models.Transaction, error) {
	tx, err := tbl.transaction(r)
	if err != nil {
		return nil, err
	}
	tx.CompanyID = companyID

	spike, err := p.spike.Estimate(ctx, companyID, tx.TransactionAmount, tx.TransactionHour)
	if err != nil {
		// Degrade to "no spike" and keep the row.
		warn := &RowError{Row: r.num, Kind: KindStoreUnavailable, Err: err}
		res.Errors = append(res.Errors, warn)
		log.Warn().Err(err).Int("row", r.num).Msg("spike history unavailable, assuming no spike")
		spike = false
	}
	tx.SuddenSpike = spike

	pred, err := p.classifier.Classify(ctx, classifier.RequestFor(tx))
	if err != nil {
		if !errors.Is(err, classifier.ErrClassification) {
			err = fmt.Errorf("%w: %v", classifier.ErrClassification, err)
		}
		return nil, err
	}
	tx.Label = pred.Label
	tx.Timestamp = p.now()
	tx.BatchID = &res.BatchID

	reasons, err := json.Marshal(pred.Explanation.TechnicalReasons)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding technical reasons: %v", ErrPersistence, err)
	}
	detail := &models.TransactionDetail{
		VerifyStatus:     false,
		AISummary:        pred.Explanation.AISummary,
		TechnicalReasons: datatypes.JSON(reasons),
	}

	if err := p.persist(ctx, tx, detail); err != nil {
		return nil, err
	}
	tx.Detail = detail
	return tx, nil
}

// persist writes the pair atomically, drawing a fresh identifier whenever
// the drawn one is already taken.
func (p *Pipeline) persist(ctx context.Context, tx *models.Transaction, detail *models.TransactionDetail) error {
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		tx.TransactionID = p.newID()
		err := p.store.CreateWithDetail(ctx, tx, detail)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateID) {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}
	return fmt.Errorf("%w: no free transaction identifier after %d attempts", ErrPersistence, maxIDAttempts)
}

func logRowError(log zerolog.Logger, e *RowError) {
	var ev *zerolog.Event
	if e.Kind == KindRowSkipped {
		ev = log.Warn()
	} else {
		ev = log.Error()
	}
	ev.Err(e.Err).Int("row", e.Row).Str("kind", string(e.Kind)).Msg("row not ingested")
}

func (p *Pipeline) startBatch(ctx context.Context, log zerolog.Logger, res *Result, companyID, filename string) {
	p.sweepProgress()
	p.progress.Store(res.BatchID, progressEntry{Progress: Progress{Total: res.TotalRows, Status: models.BatchStatusProcessing}})
	if p.batches == nil {
		return
	}
	now := time.Now()
	batch := &models.IngestionBatch{
		ID:        res.BatchID,
		CompanyID: companyID,
		Filename:  filename,
		TotalRows: res.TotalRows,
		Status:    models.BatchStatusProcessing,
		Warnings:  datatypes.JSON("[]"),
		StartedAt: now,
		CreatedAt: now,
	}
	if err := p.batches.Create(ctx, batch); err != nil {
		log.Error().Err(err).Msg("failed to record ingestion batch")
	}
}

func (p *Pipeline) trackProgress(ctx context.Context, log zerolog.Logger, batchID uuid.UUID, processed, total int) {
	p.progress.Store(batchID, progressEntry{Progress: Progress{ProcessedCount: processed, Total: total, Status: models.BatchStatusProcessing}})
	if p.batches == nil || processed%progressInterval != 0 {
		return
	}
	if err := p.batches.UpdateProgress(ctx, batchID, processed); err != nil {
		log.Warn().Err(err).Msg("failed to update batch progress")
	}
}

// finishBatch uses a fresh context so the batch is closed even when the
// request context has been cancelled.
func (p *Pipeline) finishBatch(log zerolog.Logger, res *Result, status string) {
	processed := len(res.Transactions)
	for _, e := range res.Errors {
		if e.Kind != KindStoreUnavailable {
			processed++
		}
	}
	p.progress.Store(res.BatchID, progressEntry{
		Progress: Progress{ProcessedCount: processed, Total: res.TotalRows, Status: status},
		expires:  p.now().Add(finishedProgressTTL),
	})
	if p.batches == nil {
		return
	}

	warnings, err := json.Marshal(res.Warnings())
	if err != nil {
		warnings = []byte("[]")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	skipped := processed - len(res.Transactions)
	if err := p.batches.Complete(ctx, res.BatchID, status, processed, len(res.Transactions), skipped, datatypes.JSON(warnings)); err != nil {
		log.Error().Err(err).Msg("failed to complete ingestion batch")
		return
	}
	// The stored batch is authoritative from here on.
	p.progress.Delete(res.BatchID)
}
