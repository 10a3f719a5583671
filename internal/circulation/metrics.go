// internal/circulation/metrics.go
package circulation

import (
	"libradesk/internal/metrics"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func countOutcome(vec *prometheus.CounterVec, err error) {
	switch kind := KindOf(err); kind {
	case KindNone:
		vec.WithLabelValues(metrics.ResultOK, "").Inc()
	case KindStorageFailure:
		vec.WithLabelValues(metrics.ResultError, kind.String()).Inc()
	default:
		vec.WithLabelValues(metrics.ResultRejected, kind.String()).Inc()
	}
}

func countCommand(command string, err error) {
	result := metrics.ResultOK
	switch KindOf(err) {
	case KindNone:
	case KindStorageFailure:
		result = metrics.ResultError
	default:
		result = metrics.ResultRejected
	}
	metrics.CatalogCommands.WithLabelValues(command, result).Inc()
}

func observe(operation string, start time.Time) {
	metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
