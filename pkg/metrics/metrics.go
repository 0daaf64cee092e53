package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels recorded for each store operation.
const (
	ResultOK             = "ok"
	ResultError          = "error"
	ResultNotImplemented = "not_implemented"
)

// StoreMetrics holds Prometheus collectors for persistence operations.
type StoreMetrics struct {
	registry          *prometheus.Registry
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewStoreMetrics registers the store collectors on a private registry.
func NewStoreMetrics() *StoreMetrics {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classchart_store_operations_total",
		Help: "Total number of persistence operations by backend, operation and result",
	}, []string{"backend", "operation", "result"})

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "classchart_store_operation_duration_seconds",
		Help:    "Duration of persistence operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	registry.MustRegister(operationsTotal, operationDuration)

	return &StoreMetrics{
		registry:          registry,
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
	}
}

// Observe records one finished operation.
func (m *StoreMetrics) Observe(backend, operation, result string, started time.Time) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(backend, operation, result).Inc()
	m.operationDuration.WithLabelValues(backend, operation).Observe(time.Since(started).Seconds())
}

// Counter exposes the counter child for a label set (used in tests and reports).
func (m *StoreMetrics) Counter(backend, operation, result string) prometheus.Counter {
	return m.operationsTotal.WithLabelValues(backend, operation, result)
}

// Registry exposes the underlying registry for gathering.
func (m *StoreMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every collected metric to path in the Prometheus text
// exposition format, replacing the file atomically.
func (m *StoreMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
