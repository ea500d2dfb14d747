// Package metrics holds the Prometheus instrumentation for import runs.
//
// The curator is a batch tool, so nothing is scraped. When a textfile path is configured the
// default registry is written after every run in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/listenupapp/testimonials/internal/domain"
)

const namespace = "curator"

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_runs_total",
			Help:      "Total number of import runs by source and terminal status",
		},
		[]string{"source", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_run_duration_seconds",
			Help:      "Duration of import runs in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"source"},
	)

	RunLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "import_last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last completed import run",
		},
		[]string{"source"},
	)

	// RecordsTotal counts records by outcome: fetched, imported, updated, duplicate, failed.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of testimonial records by outcome",
		},
		[]string{"source", "outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Avatar metrics
	AvatarResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "avatar_results_total",
			Help:      "Avatar resolutions by result (downloaded, generated, failed)",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// ObserveStage records how long a stage took.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun folds a finished run report into the run and record counters.
func ObserveRun(report *domain.RunReport) {
	if report == nil {
		return
	}
	src := report.Source

	RunsTotal.WithLabelValues(src, string(report.Status)).Inc()
	if d := report.Duration(); d > 0 {
		RunDuration.WithLabelValues(src).Observe(d.Seconds())
	}
	if report.Status == domain.RunStatusCompleted {
		RunLastSuccess.WithLabelValues(src).Set(float64(report.FinishedAt.Unix()))
	}

	RecordsTotal.WithLabelValues(src, "fetched").Add(float64(report.Fetched))
	RecordsTotal.WithLabelValues(src, "imported").Add(float64(report.Imported))
	RecordsTotal.WithLabelValues(src, "updated").Add(float64(report.Updated))
	RecordsTotal.WithLabelValues(src, "duplicate").Add(float64(report.Duplicates))
	RecordsTotal.WithLabelValues(src, "failed").Add(float64(report.FailedImports))
}

// WriteTextfile dumps the default registry to path. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
