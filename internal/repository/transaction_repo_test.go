package repository

import (
	"context"
	"testing"
	"time"

	"carbonwatch-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTx(id int64, companyID string, hour int, label string) *models.Transaction {
	return &models.Transaction{
		TransactionID:     id,
		CompanyID:         companyID,
		TransactionAmount: 1000,
		CarbonVolume:      10,
		PricePerTon:       100,
		OriginCountry:     "ID",
		BuyerIndustry:     "Energy",
		EntityType:        "Corp",
		TransactionHour:   hour,
		Label:             label,
		Timestamp:         time.Date(2024, 3, 5, hour, 0, 0, 0, time.UTC),
	}
}

func newDetail(summary string) *models.TransactionDetail {
	return &models.TransactionDetail{AISummary: summary, TechnicalReasons: datatypes.JSON(`["reason"]`)}
}

func TestCreateWithDetail_StoresBothRows(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(newTestDB(t))

	require.NoError(t, repo.CreateWithDetail(ctx, newTx(11, "C-1", 9, models.LabelSuspicious), newDetail("late trade")))

	got, err := repo.GetWithDetail(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, models.LabelSuspicious, got.Label)
	require.NotNil(t, got.Detail)
	assert.Equal(t, "late trade", got.Detail.AISummary)
	assert.False(t, got.Detail.VerifyStatus)
	assert.JSONEq(t, `["reason"]`, string(got.Detail.TechnicalReasons))
}

func TestCreateWithDetail_FailedDetailRollsBackTransaction(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewTransactionRepository(db)

	// A stray detail row makes the second insert of the pair fail.
	require.NoError(t, db.Create(&models.TransactionDetail{TransactionID: 5, AISummary: "stray"}).Error)

	err := repo.CreateWithDetail(ctx, newTx(5, "C-1", 10, models.LabelNormal), newDetail("new"))
	require.Error(t, err)

	exists, err := repo.Exists(ctx, 5)
	require.NoError(t, err)
	assert.False(t, exists, "transaction row must not survive a failed detail insert")
}

func TestCreateWithDetail_DuplicateIDLeavesExistingRow(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(newTestDB(t))

	require.NoError(t, repo.CreateWithDetail(ctx, newTx(1, "C-1", 8, models.LabelNormal), newDetail("original")))

	err := repo.CreateWithDetail(ctx, newTx(1, "C-2", 23, models.LabelRedFlag), newDetail("replacement"))
	assert.ErrorIs(t, err, ErrDuplicateID)

	got, err := repo.GetWithDetail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "C-1", got.CompanyID)
	assert.Equal(t, models.LabelNormal, got.Label)
	assert.Equal(t, 8, got.TransactionHour)
	require.NotNil(t, got.Detail)
	assert.Equal(t, "original", got.Detail.AISummary)
}

func TestRecentByCompany_OrdersByHourAndLimits(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(newTestDB(t))

	for i, hour := range []int{3, 22, 10, 15} {
		require.NoError(t, repo.CreateWithDetail(ctx, newTx(int64(i+1), "C-1", hour, models.LabelNormal), newDetail("")))
	}
	require.NoError(t, repo.CreateWithDetail(ctx, newTx(99, "C-2", 23, models.LabelNormal), newDetail("")))

	got, err := repo.RecentByCompany(ctx, "C-1", 3)
	require.NoError(t, err)

	hours := make([]int, 0, len(got))
	for _, tx := range got {
		assert.Equal(t, "C-1", tx.CompanyID)
		hours = append(hours, tx.TransactionHour)
	}
	assert.Equal(t, []int{22, 15, 10}, hours)
}

func TestRecentByCompany_NoHistory(t *testing.T) {
	got, err := NewTransactionRepository(newTestDB(t)).RecentByCompany(context.Background(), "C-1", 10)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetWithDetail_NotFound(t *testing.T) {
	_, err := NewTransactionRepository(newTestDB(t)).GetWithDetail(context.Background(), 404)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(newTestDB(t))
	require.NoError(t, repo.CreateWithDetail(ctx, newTx(7, "C-1", 12, models.LabelNormal), newDetail("")))

	ok, err := repo.Exists(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}
