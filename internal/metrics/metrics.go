package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carbonwatch"

var (
	// IngestedRows counts processed upload rows.
	// Labels: outcome (persisted, skipped, classification_error, persistence_error)
	IngestedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "rows_total",
		Help:      "Upload rows processed by outcome",
	}, []string{"outcome"})

	// IngestionDuration measures whole-batch ingestion time.
	IngestionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "batch_duration_seconds",
		Help:      "Time taken to ingest one upload",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// ClassifierLatency measures classifier round trips.
	// Labels: backend (http, gemini), status (success, error)
	ClassifierLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "latency_seconds",
		Help:      "Classifier call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"backend", "status"})

	// SpikeEvaluations counts spike estimator results.
	// Labels: result (spike, normal, no_history, store_unavailable)
	SpikeEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "spike",
		Name:      "evaluations_total",
		Help:      "Spike estimator evaluations by result",
	}, []string{"result"})

	// Verifications counts verification attempts.
	// Labels: label, status (success, not_found, error)
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "requests_total",
		Help:      "Verification requests by resulting label and status",
	}, []string{"label", "status"})

	// PatternFindings counts findings produced by the pattern detector.
	// Labels: category
	PatternFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "patterns",
		Name:      "findings_total",
		Help:      "Anomaly pattern findings by category",
	}, []string{"category"})
)
