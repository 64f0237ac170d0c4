package main

import (
	"fmt"
	"io"
	"strings"

	"carbonwatch-backend/internal/models"
	"carbonwatch-backend/internal/services/ingestion"
	"carbonwatch-backend/internal/services/patterns"
)

func printResult(w io.Writer, res *ingestion.Result) {
	fmt.Fprintf(w, "Batch %s\n", res.BatchID)
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "  Rows:     %d\n", res.TotalRows)
	fmt.Fprintf(w, "  Stored:   %d\n", len(res.Transactions))

	flagged := 0
	for _, tx := range res.Transactions {
		if models.IsFlagged(tx.Label) {
			flagged++
		}
	}
	fmt.Fprintf(w, "  Flagged:  %d\n", flagged)

	warnings := res.Warnings()
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "\nWarnings (%d):\n", len(warnings))
	for _, warn := range warnings {
		fmt.Fprintf(w, "  row %-5d %-22s %s\n", warn.Row, warn.Kind, warn.Message)
	}
}

func printFindings(w io.Writer, findings []patterns.Finding) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No patterns detected.")
		return
	}
	for _, f := range findings {
		fmt.Fprintf(w, "[%-8s] %-18s %s\n", strings.ToUpper(string(f.Severity)), f.Category, f.Message)
	}
}
