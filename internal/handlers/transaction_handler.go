package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"carbonwatch-backend/internal/logger"
	"carbonwatch-backend/internal/models"
	"carbonwatch-backend/internal/services/ingestion"
	"carbonwatch-backend/internal/services/verification"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 20 << 20

type Ingester interface {
	Ingest(ctx context.Context, upload ingestion.Upload, company *models.Company) (*ingestion.Result, error)
	Progress(batchID uuid.UUID) (ingestion.Progress, bool)
}

type TransactionReader interface {
	ListByCompany(ctx context.Context, companyID string) ([]models.Transaction, error)
	GetWithDetail(ctx context.Context, id int64) (*models.Transaction, error)
}

type BatchReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.IngestionBatch, error)
}

type Verifier interface {
	Verify(ctx context.Context, transactionID int64, req verification.Request) (*models.VerificationAuditLog, error)
}

type TransactionHandler struct {
	companies    CompanyStore
	transactions TransactionReader
	ingester     Ingester
	batches      BatchReader
	verifier     Verifier
}

func NewTransactionHandler(companies CompanyStore, transactions TransactionReader, ingester Ingester, batches BatchReader, verifier Verifier) *TransactionHandler {
	return &TransactionHandler{
		companies:    companies,
		transactions: transactions,
		ingester:     ingester,
		batches:      batches,
		verifier:     verifier,
	}
}

// Upload ingests a CSV of transactions for one company and returns the stored
// records together with any rows that were skipped.
func (h *TransactionHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	log := logger.FromContext(c.Request.Context())
	log.Info().Str("file", header.Filename).Int64("size", header.Size).Msg("received upload")

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 20MB"})
		return
	}

	company, err := h.companies.GetByID(c.Request.Context(), c.Param("companyId"))
	if err != nil {
		respondError(c, err)
		return
	}

	// A dropped client connection must not abort a batch that is half stored.
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := h.ingester.Ingest(ctx, ingestion.Upload{Filename: header.Filename, Data: data}, company)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id":     res.BatchID.String(),
		"file":         header.Filename,
		"total_rows":   res.TotalRows,
		"count":        len(res.Transactions),
		"transactions": res.Transactions,
		"warnings":     res.Warnings(),
	})
}

func (h *TransactionHandler) ListByCompany(c *gin.Context) {
	companyID := c.Param("companyId")
	if _, err := h.companies.GetByID(c.Request.Context(), companyID); err != nil {
		respondError(c, err)
		return
	}

	txs, err := h.transactions.ListByCompany(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"items": txs, "count": len(txs)})
}

func (h *TransactionHandler) Get(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}

	tx, err := h.transactions.GetWithDetail(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// Verify applies an analyst's label to a transaction and marks it verified.
func (h *TransactionHandler) Verify(c *gin.Context) {
	id, ok := transactionID(c)
	if !ok {
		return
	}

	var req verification.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	entry, err := h.verifier.Verify(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction verified", "audit": entry})
}

// GetBatchProgress reports live progress for a running batch and falls back
// to the stored record once the batch is no longer in memory.
func (h *TransactionHandler) GetBatchProgress(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}

	if p, ok := h.ingester.Progress(batchID); ok {
		c.JSON(http.StatusOK, gin.H{
			"processed_count": p.ProcessedCount,
			"total":           p.Total,
			"status":          p.Status,
		})
		return
	}

	batch, err := h.batches.GetByID(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed_count": batch.ProcessedCount,
		"total":           batch.TotalRows,
		"status":          batch.Status,
		"succeeded_count": batch.SucceededCount,
		"skipped_count":   batch.SkippedCount,
		"warnings":        batch.Warnings,
	})
}

func transactionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return 0, false
	}
	return id, true
}
