package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"carbonwatch-backend/internal/app"
	"carbonwatch-backend/internal/config"
	"carbonwatch-backend/internal/logger"
	"carbonwatch-backend/internal/services/ingestion"
	"carbonwatch-backend/internal/services/verification"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "carbonwatch",
		Short:         "Carbon-credit transaction monitoring from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(patternsCmd())
	rootCmd.AddCommand(verifyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open loads the environment and builds the shared services.
func open(ctx context.Context) (*app.App, error) {
	_ = godotenv.Load()
	return app.New(ctx, config.Load(), logger.New())
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func ingestCmd() *cobra.Command {
	var companyID, path string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a CSV of transactions for a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			ctx, stop := signalContext(cmd)
			defer stop()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			company, err := a.Companies.GetByID(ctx, companyID)
			if err != nil {
				return fmt.Errorf("company %s: %w", companyID, err)
			}
			res, err := a.Pipeline.Ingest(ctx, ingestion.Upload{Filename: filepath.Base(path), Data: data}, company)
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&companyID, "company", "c", "", "Company ID that owns the transactions")
	cmd.Flags().StringVarP(&path, "file", "f", "", "Path to the CSV file")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func patternsCmd() *cobra.Command {
	var companyID string
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Show anomaly patterns across a company's flagged transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			findings, err := a.Reports.Patterns(ctx, companyID)
			if err != nil {
				return err
			}
			printFindings(cmd.OutOrStdout(), findings)
			return nil
		},
	}

	cmd.Flags().StringVarP(&companyID, "company", "c", "", "Company ID")
	_ = cmd.MarkFlagRequired("company")

	return cmd
}

func verifyCmd() *cobra.Command {
	var (
		id  int64
		req verification.Request
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Set the final label of a transaction and mark it verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.Verifier.Verify(ctx, id, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transaction %d: %s -> %s (by %s)\n",
				entry.TransactionID, entry.PreviousLabel, entry.NewLabel, entry.PerformedBy)
			return nil
		},
	}

	cmd.Flags().Int64VarP(&id, "transaction", "t", 0, "Transaction ID")
	cmd.Flags().StringVarP(&req.Label, "label", "l", "", "Normal, Suspicious or Red-Flag")
	cmd.Flags().StringVar(&req.PerformedBy, "by", "", "Analyst name")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "Reason for the decision")
	_ = cmd.MarkFlagRequired("transaction")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}
