// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "libradesk"

// Result label values.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	// Borrows counts borrow attempts.
	// Labels: result (ok, rejected, error), reason (error kind for failures)
	Borrows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "circulation",
		Name:      "borrows_total",
		Help:      "Total borrow attempts by outcome",
	}, []string{"result", "reason"})

	// Returns counts return attempts.
	Returns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "circulation",
		Name:      "returns_total",
		Help:      "Total return attempts by outcome",
	}, []string{"result", "reason"})

	// CatalogCommands counts book and reader maintenance commands.
	// Labels: command (add_book, remove_reader, ...), result
	CatalogCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "commands_total",
		Help:      "Total catalog maintenance commands by outcome",
	}, []string{"command", "result"})

	// ImportedRecords counts records accepted by bulk imports.
	ImportedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transfer",
		Name:      "imported_records_total",
		Help:      "Records inserted by bulk import",
	}, []string{"kind"})

	// OperationDuration measures engine operation latency.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "circulation",
		Name:      "operation_duration_seconds",
		Help:      "Circulation operation latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"operation"})

	// OverdueLoans is today's overdue count from the last summary request.
	OverdueLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "overdue_loans",
		Help:      "Overdue loans at the last statistics summary",
	})

	// PublishFailures counts journal events the broker did not accept.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Journal events that could not be published",
	})
)
