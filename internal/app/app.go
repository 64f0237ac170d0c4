// Package app wires the record store, the services and the ingestion pipeline
// shared by the HTTP server and the command line tool.
package app

import (
	"context"
	"fmt"

	"carbonwatch-backend/internal/config"
	"carbonwatch-backend/internal/repository"
	"carbonwatch-backend/internal/services/classifier"
	"carbonwatch-backend/internal/services/ingestion"
	"carbonwatch-backend/internal/services/reporting"
	"carbonwatch-backend/internal/services/spike"
	"carbonwatch-backend/internal/services/verification"
	"carbonwatch-backend/internal/storage"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type App struct {
	DB  *gorm.DB
	Log zerolog.Logger

	Companies     *repository.CompanyRepository
	Transactions  *repository.TransactionRepository
	Batches       *repository.BatchRepository
	Verifications *repository.VerificationRepository

	Pipeline *ingestion.Pipeline
	Reports  *reporting.Service
	Verifier *verification.Service

	// Logos is nil when no bucket is configured.
	Logos storage.LogoStore

	closers []func() error
}

// New opens the database, migrates it and builds every service.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	db, err := config.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := config.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	clf, err := classifier.New(ctx, cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	return Build(db, clf, cfg, log), nil
}

// Build assembles the services around an open database and a classifier.
func Build(db *gorm.DB, clf classifier.Classifier, cfg *config.Config, log zerolog.Logger) *App {
	a := &App{
		DB:            db,
		Log:           log,
		Companies:     repository.NewCompanyRepository(db),
		Transactions:  repository.NewTransactionRepository(db),
		Batches:       repository.NewBatchRepository(db),
		Verifications: repository.NewVerificationRepository(db),
	}

	estimator := spike.NewEstimator(a.Transactions, spike.Config{
		HistoryLimit: cfg.Spike.HistoryLimit,
		Threshold:    cfg.Spike.Threshold,
		HourWindow:   cfg.Spike.HourWindow,
		TimeWeight:   cfg.Spike.TimeWeight,
	})
	a.Pipeline = ingestion.NewPipeline(a.Transactions, estimator, clf,
		ingestion.WithBatchStore(a.Batches),
		ingestion.WithLogger(log.With().Str("component", "ingestion").Logger()),
	)
	a.Reports = reporting.NewService(a.Companies, a.Transactions)
	a.Verifier = verification.NewService(a.Verifications, a.Transactions, log.With().Str("component", "verification").Logger())

	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return a
}

// EnableLogos connects the logo bucket. It is a no-op without a bucket name.
func (a *App) EnableLogos(ctx context.Context, cfg config.StorageConfig) error {
	if cfg.LogoBucket == "" {
		a.Log.Info().Msg("LOGO_BUCKET not set, logo uploads disabled")
		return nil
	}
	store, err := storage.NewGCSLogoStore(ctx, cfg.LogoBucket, cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("connect logo bucket: %w", err)
	}
	a.Logos = store
	a.closers = append(a.closers, store.Close)
	return nil
}

// Close releases the bucket client and the database pool.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
