// Package metrics provides Prometheus metrics for the Index Syncer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the Index Syncer.
type Metrics struct {
	// Run metrics
	RunsCompleted *prometheus.CounterVec
	RunsFailed    *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec

	// Document metrics
	DocsUpdated *prometheus.CounterVec
	DocsSkipped *prometheus.CounterVec
	DocsDeleted *prometheus.CounterVec

	// Attachment metrics
	AttachmentsIndexed *prometheus.CounterVec
	AttachmentErrors   *prometheus.CounterVec

	// Bulk metrics
	BulkCalls        *prometheus.CounterVec
	BulkOps          *prometheus.CounterVec
	BulkRetries      *prometheus.CounterVec
	BulkItemFailures *prometheus.CounterVec
	BulkCallDuration *prometheus.HistogramVec
	BulkChunkOps     *prometheus.HistogramVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "index_syncer"
	}

	m := &Metrics{
		RunsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of completed synchronization runs",
			},
			[]string{"index"},
		),
		RunsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_failed_total",
				Help:      "Total number of failed synchronization runs",
			},
			[]string{"index"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of a synchronization run",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
			[]string{"index"},
		),
		DocsUpdated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docs_updated_total",
				Help:      "Total number of documents created or updated",
			},
			[]string{"index"},
		),
		DocsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docs_skipped_total",
				Help:      "Total number of documents skipped as unchanged",
			},
			[]string{"index"},
		),
		DocsDeleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "docs_deleted_total",
				Help:      "Total number of documents deleted as vanished",
			},
			[]string{"index"},
		),
		AttachmentsIndexed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attachments_indexed_total",
				Help:      "Total number of attachment records indexed",
			},
			[]string{"index"},
		),
		AttachmentErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attachment_errors_total",
				Help:      "Total number of attachment fetches skipped after an error",
			},
			[]string{"index"},
		),
		BulkCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_calls_total",
				Help:      "Total number of accepted bulk calls",
			},
			[]string{"index"},
		),
		BulkOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_ops_total",
				Help:      "Total number of operations submitted in bulk calls",
			},
			[]string{"index"},
		),
		BulkRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_retries_total",
				Help:      "Total number of bulk call retry attempts",
			},
			[]string{"index"},
		),
		BulkItemFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_item_failures_total",
				Help:      "Total number of per-item rejections inside accepted bulk calls",
			},
			[]string{"index"},
		),
		BulkCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bulk_call_duration_seconds",
				Help:      "Duration of a single bulk call",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"index"},
		),
		BulkChunkOps: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bulk_chunk_ops",
				Help:      "Number of operations per bulk call",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1 to ~2k
			},
			[]string{"index"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// RecordRun records the aggregate counters of a completed run.
func (m *Metrics) RecordRun(index string, updated, skipped, deleted, attachments, attachmentErrors int, seconds float64) {
	m.RunsCompleted.WithLabelValues(index).Inc()
	m.RunDuration.WithLabelValues(index).Observe(seconds)
	m.DocsUpdated.WithLabelValues(index).Add(float64(updated))
	m.DocsSkipped.WithLabelValues(index).Add(float64(skipped))
	m.DocsDeleted.WithLabelValues(index).Add(float64(deleted))
	m.AttachmentsIndexed.WithLabelValues(index).Add(float64(attachments))
	m.AttachmentErrors.WithLabelValues(index).Add(float64(attachmentErrors))
}

// IncSyncErrors increments the failed runs counter.
func (m *Metrics) IncSyncErrors(index string) {
	m.RunsFailed.WithLabelValues(index).Inc()
}

// ObserveBulkCall records one accepted bulk call.
func (m *Metrics) ObserveBulkCall(index string, ops int, seconds float64) {
	m.BulkCalls.WithLabelValues(index).Inc()
	m.BulkOps.WithLabelValues(index).Add(float64(ops))
	m.BulkCallDuration.WithLabelValues(index).Observe(seconds)
	m.BulkChunkOps.WithLabelValues(index).Observe(float64(ops))
}

// IncBulkRetries increments the bulk retries counter.
func (m *Metrics) IncBulkRetries(index string) {
	m.BulkRetries.WithLabelValues(index).Inc()
}

// AddItemFailures adds to the per-item rejection counter.
func (m *Metrics) AddItemFailures(index string, n int) {
	if n == 0 {
		return
	}
	m.BulkItemFailures.WithLabelValues(index).Add(float64(n))
}
