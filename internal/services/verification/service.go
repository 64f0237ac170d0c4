// Package verification finalises a transaction label after human review.
package verification

import (
	"context"
	"errors"
	"fmt"

	"carbonwatch-backend/internal/metrics"
	"carbonwatch-backend/internal/models"
	"carbonwatch-backend/internal/repository"

	"github.com/rs/zerolog"
)

var ErrInvalidLabel = errors.New("label must be Normal, Suspicious or Red-Flag")

type Store interface {
	ApplyVerification(ctx context.Context, transactionID int64, label, performedBy, reason string) (*models.VerificationAuditLog, error)
}

// Lookup answers whether a transaction exists before any write is attempted.
type Lookup interface {
	Exists(ctx context.Context, transactionID int64) (bool, error)
}

type Request struct {
	Label       string `json:"label" binding:"required"`
	PerformedBy string `json:"performed_by"`
	Reason      string `json:"reason"`
}

type Service struct {
	store        Store
	transactions Lookup
	log          zerolog.Logger
}

func NewService(store Store, transactions Lookup, log zerolog.Logger) *Service {
	return &Service{store: store, transactions: transactions, log: log}
}

// Verify sets the label and marks the detail verified as one operation. On
// any error neither change is visible.
func (s *Service) Verify(ctx context.Context, transactionID int64, req Request) (*models.VerificationAuditLog, error) {
	if !models.ValidLabel(req.Label) {
		metrics.Verifications.WithLabelValues("invalid", "rejected").Inc()
		return nil, fmt.Errorf("%w: got %q", ErrInvalidLabel, req.Label)
	}
	performedBy := req.PerformedBy
	if performedBy == "" {
		performedBy = "analyst"
	}

	exists, err := s.transactions.Exists(ctx, transactionID)
	if err != nil {
		metrics.Verifications.WithLabelValues(req.Label, "error").Inc()
		return nil, fmt.Errorf("look up transaction %d: %w", transactionID, err)
	}
	if !exists {
		metrics.Verifications.WithLabelValues(req.Label, "not_found").Inc()
		return nil, fmt.Errorf("transaction %d: %w", transactionID, repository.ErrNotFound)
	}

	audit, err := s.store.ApplyVerification(ctx, transactionID, req.Label, performedBy, req.Reason)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		metrics.Verifications.WithLabelValues(req.Label, "not_found").Inc()
		return nil, fmt.Errorf("transaction %d: %w", transactionID, err)
	case err != nil:
		metrics.Verifications.WithLabelValues(req.Label, "error").Inc()
		s.log.Error().Err(err).Int64("transaction_id", transactionID).Msg("verification failed")
		return nil, fmt.Errorf("verify transaction %d: %w", transactionID, err)
	}

	metrics.Verifications.WithLabelValues(req.Label, "success").Inc()
	s.log.Info().
		Int64("transaction_id", transactionID).
		Str("previous_label", audit.PreviousLabel).
		Str("label", audit.NewLabel).
		Str("performed_by", performedBy).
		Msg("transaction verified")
	return audit, nil
}
