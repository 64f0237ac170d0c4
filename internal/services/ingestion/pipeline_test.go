package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"carbonwatch-backend/internal/logger"
	"carbonwatch-backend/internal/models"
	"carbonwatch-backend/internal/repository"
	"carbonwatch-backend/internal/services/classifier"
	"carbonwatch-backend/internal/services/spike"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// memStore is an in-memory transaction store that rejects duplicate ids.
type memStore struct {
	mu         sync.Mutex
	txs        map[int64]models.Transaction
	details    map[int64]models.TransactionDetail
	createErr  error
	recentErr  error
	createCall int
}

func newMemStore() *memStore {
	return &memStore{txs: map[int64]models.Transaction{}, details: map[int64]models.TransactionDetail{}}
}

func (m *memStore) CreateWithDetail(ctx context.Context, tx *models.Transaction, detail *models.TransactionDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCall++
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.txs[tx.TransactionID]; ok {
		return repository.ErrDuplicateID
	}
	detail.TransactionID = tx.TransactionID
	m.txs[tx.TransactionID] = *tx
	m.details[tx.TransactionID] = *detail
	return nil
}

func (m *memStore) RecentByCompany(ctx context.Context, companyID string, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	var out []models.Transaction
	for _, t := range m.txs {
		if t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionHour > out[j].TransactionHour })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockClassifier struct {
	ClassifyFunc func(ctx context.Context, req classifier.Request) (*classifier.Prediction, error)
	calls        []classifier.Request
}

func (m *mockClassifier) Classify(ctx context.Context, req classifier.Request) (*classifier.Prediction, error) {
	m.calls = append(m.calls, req)
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, req)
	}
	return &classifier.Prediction{
		Label: models.LabelSuspicious,
		Explanation: classifier.Explanation{
			AISummary:        "unusual hour",
			TechnicalReasons: []string{"hour 23", "cross border"},
		},
	}, nil
}

type mockBatchStore struct {
	created     *models.IngestionBatch
	completeErr error
	completed   struct {
		status                        string
		processed, succeeded, skipped int
		warnings                      datatypes.JSON
	}
}

func (m *mockBatchStore) Create(ctx context.Context, b *models.IngestionBatch) error {
	m.created = b
	return nil
}

func (m *mockBatchStore) UpdateProgress(ctx context.Context, id uuid.UUID, processed int) error {
	return nil
}

func (m *mockBatchStore) Complete(ctx context.Context, id uuid.UUID, status string, processed, succeeded, skipped int, warnings datatypes.JSON) error {
	m.completed.status = status
	m.completed.processed = processed
	m.completed.succeeded = succeeded
	m.completed.skipped = skipped
	m.completed.warnings = warnings
	return m.completeErr
}

var fixedNow = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func sequentialIDs(ids ...int64) func() int64 {
	i := 0
	return func() int64 {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func company() *models.Company {
	return &models.Company{CompanyID: "C-1", Name: "Hutan Lestari", Sector: models.SectorForestry}
}

func newTestPipeline(store *memStore, c classifier.Classifier, opts ...Option) *Pipeline {
	est := spike.NewEstimator(store, spike.DefaultConfig())
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewPipeline(store, est, c, opts...)
}

func TestIngest_EndToEndSingleRow(t *testing.T) {
	store := newMemStore()
	cls := &mockClassifier{}
	p := newTestPipeline(store, cls, WithIDGenerator(sequentialIDs(4242)))

	data := header + "50000,200,10,ID,true,Energy,23,Corp\n"
	res, err := p.Ingest(context.Background(), Upload{Filename: "one.csv", Data: []byte(data)}, company())

	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.TotalRows)

	require.Len(t, cls.calls, 1)
	assert.False(t, cls.calls[0].SuddenSpike)
	assert.Equal(t, 50000.0, cls.calls[0].TransactionAmount)
	assert.True(t, cls.calls[0].CrossBorder)
	assert.Equal(t, 23, cls.calls[0].TransactionHour)

	got := res.Transactions[0]
	assert.Equal(t, int64(4242), got.TransactionID)
	assert.Equal(t, "C-1", got.CompanyID)
	assert.Equal(t, models.LabelSuspicious, got.Label)
	assert.Equal(t, fixedNow, got.Timestamp)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, res.BatchID, *got.BatchID)

	require.Len(t, store.txs, 1)
	detail, ok := store.details[4242]
	require.True(t, ok)
	assert.False(t, detail.VerifyStatus)
	assert.Equal(t, "unusual hour", detail.AISummary)
	var reasons []string
	require.NoError(t, json.Unmarshal(detail.TechnicalReasons, &reasons))
	assert.Equal(t, []string{"hour 23", "cross border"}, reasons)
}

func TestIngest_FatalErrors(t *testing.T) {
	p := newTestPipeline(newMemStore(), &mockClassifier{})

	_, err := p.Ingest(context.Background(), Upload{Data: []byte(header)}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = p.Ingest(context.Background(), Upload{Data: []byte(header)}, &models.Company{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = p.Ingest(context.Background(), Upload{Data: nil}, company())
	assert.ErrorIs(t, err, ErrParse)
}

func TestIngest_RowFailuresDoNotAbortBatch(t *testing.T) {
	store := newMemStore()
	cls := &mockClassifier{
		ClassifyFunc: func(ctx context.Context, req classifier.Request) (*classifier.Prediction, error) {
			if req.OriginCountry == "XX" {
				return nil, errors.New("model offline")
			}
			return &classifier.Prediction{Label: models.LabelNormal}, nil
		},
	}
	p := newTestPipeline(store, cls, WithIDGenerator(sequentialIDs(1, 2, 3, 4, 5)))

	data := header +
		"100,2,50,ID,true,Energy,9,Corp\n" + // ok
		"abc,2,50,ID,true,Energy,9,Corp\n" + // skipped
		"100,2,50,XX,true,Energy,9,Corp\n" + // classifier fails
		"120,2,50,SG,false,Energy,10,Corp\n" // ok

	res, err := p.Ingest(context.Background(), Upload{Data: []byte(data)}, company())

	require.NoError(t, err)
	assert.Len(t, res.Transactions, 2)
	assert.Len(t, store.txs, 2)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, KindRowSkipped, res.Errors[0].Kind)
	assert.Equal(t, 3, res.Errors[1].Row)
	assert.Equal(t, KindClassificationError, res.Errors[1].Kind)
	assert.ErrorIs(t, res.Errors[1], classifier.ErrClassification)
	assert.Len(t, cls.calls, 3)

	warnings := res.Warnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Message, "Transaction Amount")
}

func TestIngest_EmptyLabelIsClassificationError(t *testing.T) {
	cls := &mockClassifier{
		ClassifyFunc: func(ctx context.Context, req classifier.Request) (*classifier.Prediction, error) {
			return nil, classifier.ErrClassification
		},
	}
	store := newMemStore()
	res, err := newTestPipeline(store, cls).Ingest(context.Background(), Upload{Data: []byte(header + "1,1,1,ID,true,Energy,1,Corp\n")}, company())

	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.Empty(t, store.txs)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindClassificationError, res.Errors[0].Kind)
}

func TestIngest_PersistenceErrorLeavesNothingBehind(t *testing.T) {
	store := newMemStore()
	store.createErr = errors.New("disk full")

	res, err := newTestPipeline(store, &mockClassifier{}).Ingest(context.Background(), Upload{Data: []byte(header + "1,1,1,ID,true,Energy,1,Corp\n")}, company())

	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindPersistenceError, res.Errors[0].Kind)
	assert.ErrorIs(t, res.Errors[0], ErrPersistence)
	assert.Equal(t, 1, store.createCall)
}

func TestIngest_DuplicateIDIsRedrawnNotOverwritten(t *testing.T) {
	store := newMemStore()
	store.txs[7] = models.Transaction{TransactionID: 7, CompanyID: "OTHER", TransactionAmount: 1}

	p := newTestPipeline(store, &mockClassifier{}, WithIDGenerator(sequentialIDs(7, 7, 8)))
	res, err := p.Ingest(context.Background(), Upload{Data: []byte(header + "1,1,1,ID,true,Energy,1,Corp\n")}, company())

	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, int64(8), res.Transactions[0].TransactionID)
	assert.Equal(t, "OTHER", store.txs[7].CompanyID)
	assert.Equal(t, 3, store.createCall)
}

func TestIngest_DuplicateIDExhausted(t *testing.T) {
	store := newMemStore()
	store.txs[7] = models.Transaction{TransactionID: 7}

	p := newTestPipeline(store, &mockClassifier{}, WithIDGenerator(sequentialIDs(7)))
	res, err := p.Ingest(context.Background(), Upload{Data: []byte(header + "1,1,1,ID,true,Energy,1,Corp\n")}, company())

	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindPersistenceError, res.Errors[0].Kind)
	assert.Equal(t, maxIDAttempts, store.createCall)
}

func TestIngest_StoreUnavailableDegradesToNoSpike(t *testing.T) {
	store := newMemStore()
	store.recentErr = errors.New("timeout")
	cls := &mockClassifier{}

	res, err := newTestPipeline(store, cls).Ingest(context.Background(), Upload{Data: []byte(header + "999999,1,1,ID,true,Energy,1,Corp\n")}, company())

	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.False(t, res.Transactions[0].SuddenSpike)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindStoreUnavailable, res.Errors[0].Kind)
	assert.False(t, cls.calls[0].SuddenSpike)
}

func TestIngest_SpikeSeesEarlierRowsOfSameBatch(t *testing.T) {
	store := newMemStore()
	cls := &mockClassifier{}
	p := newTestPipeline(store, cls, WithIDGenerator(sequentialIDs(1, 2)))

	data := header +
		"100,1,1,ID,false,Energy,10,Corp\n" +
		"1000,1,1,ID,false,Energy,11,Corp\n"

	res, err := p.Ingest(context.Background(), Upload{Data: []byte(data)}, company())

	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.False(t, res.Transactions[0].SuddenSpike)
	assert.True(t, res.Transactions[1].SuddenSpike)
	assert.True(t, cls.calls[1].SuddenSpike)
}

func TestIngest_ResultOrderFollowsInput(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, &mockClassifier{}, WithIDGenerator(sequentialIDs(30, 10, 20)))

	data := header +
		"1,1,1,A,false,Energy,1,Corp\n" +
		"2,1,1,B,false,Energy,1,Corp\n" +
		"3,1,1,C,false,Energy,1,Corp\n"

	res, err := p.Ingest(context.Background(), Upload{Data: []byte(data)}, company())

	require.NoError(t, err)
	require.Len(t, res.Transactions, 3)
	assert.Equal(t, "A", res.Transactions[0].OriginCountry)
	assert.Equal(t, "B", res.Transactions[1].OriginCountry)
	assert.Equal(t, "C", res.Transactions[2].OriginCountry)
}

func TestIngest_RecordsBatch(t *testing.T) {
	store := newMemStore()
	batches := &mockBatchStore{}
	p := newTestPipeline(store, &mockClassifier{}, WithBatchStore(batches), WithIDGenerator(sequentialIDs(1, 2)))

	data := header +
		"1,1,1,A,false,Energy,1,Corp\n" +
		"x,1,1,B,false,Energy,1,Corp\n"

	res, err := p.Ingest(context.Background(), Upload{Filename: "batch.csv", Data: []byte(data)}, company())

	require.NoError(t, err)
	require.NotNil(t, batches.created)
	assert.Equal(t, res.BatchID, batches.created.ID)
	assert.Equal(t, "batch.csv", batches.created.Filename)
	assert.Equal(t, 2, batches.created.TotalRows)
	assert.Equal(t, models.BatchStatusCompleted, batches.completed.status)
	assert.Equal(t, 2, batches.completed.processed)
	assert.Equal(t, 1, batches.completed.succeeded)
	assert.Equal(t, 1, batches.completed.skipped)

	var warnings []Warning
	require.NoError(t, json.Unmarshal(batches.completed.warnings, &warnings))
	require.Len(t, warnings, 1)
	assert.Equal(t, 2, warnings[0].Row)

	_, ok := p.Progress(res.BatchID)
	assert.False(t, ok, "completed batches are served from the batch store")
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestIngest_FinishedProgressExpires(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"no batch store", nil},
		{"batch store rejects completion", []Option{WithBatchStore(&mockBatchStore{completeErr: errors.New("db down")})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &stepClock{now: fixedNow}
			opts := append([]Option{WithClock(clock.Now), WithIDGenerator(sequentialIDs(1, 2, 3))}, tt.opts...)
			p := newTestPipeline(newMemStore(), &mockClassifier{}, opts...)
			data := []byte(header + "1,1,1,A,false,Energy,1,Corp\n")

			first, err := p.Ingest(context.Background(), Upload{Data: data}, company())
			require.NoError(t, err)

			got, ok := p.Progress(first.BatchID)
			require.True(t, ok)
			assert.Equal(t, models.BatchStatusCompleted, got.Status)
			assert.Equal(t, 1, got.ProcessedCount)

			clock.now = fixedNow.Add(finishedProgressTTL)
			second, err := p.Ingest(context.Background(), Upload{Data: data}, company())
			require.NoError(t, err)

			_, stored := p.progress.Load(first.BatchID)
			assert.False(t, stored, "expired entries are swept when a new batch starts")
			_, ok = p.Progress(second.BatchID)
			assert.True(t, ok)

			clock.now = clock.now.Add(finishedProgressTTL)
			_, ok = p.Progress(second.BatchID)
			assert.False(t, ok)
		})
	}
}

func TestIngest_LogsCarryBatchFields(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPipeline(newMemStore(), &mockClassifier{}, WithLogger(logger.NewWithWriter(&buf)), WithIDGenerator(sequentialIDs(1)))

	res, err := p.Ingest(context.Background(), Upload{Filename: "a.csv", Data: []byte(header + "1,1,1,A,false,Energy,1,Corp\n")}, company())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"company_id":"C-1"`)
	assert.Contains(t, out, `"batch_id":"`+res.BatchID.String()+`"`)
	assert.Contains(t, out, "ingestion started")
}

func TestIngest_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batches := &mockBatchStore{}

	res, err := newTestPipeline(newMemStore(), &mockClassifier{}, WithBatchStore(batches)).
		Ingest(ctx, Upload{Data: []byte(header + "1,1,1,A,false,Energy,1,Corp\n")}, company())

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, models.BatchStatusFailed, batches.completed.status)
}

func TestRandomTransactionIDRange(t *testing.T) {
	for i := 0; i < 10000; i++ {
		id := randomTransactionID()
		require.GreaterOrEqual(t, id, int64(1))
		require.LessOrEqual(t, id, int64(MaxTransactionID))
	}
}
