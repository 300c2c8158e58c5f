// Package metrics provides Prometheus metrics for the product registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal tracks synchronized records by outcome
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of staged records by sync outcome",
		},
		[]string{"dataset_id", "outcome"},
	)

	// TransactionDuration tracks per-record transaction duration
	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "registry",
			Subsystem: "sync",
			Name:      "transaction_duration_seconds",
			Help:      "Duration of per-record upsert transactions in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
		},
		[]string{"dataset_id"},
	)

	// TransactionRetries tracks record transactions given a second attempt
	TransactionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "sync",
			Name:      "transaction_retries_total",
			Help:      "Total number of retried record transactions by error kind",
		},
		[]string{"dataset_id", "kind"},
	)

	// RunsTotal tracks ingest runs by final status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Total number of ingest runs by status",
		},
		[]string{"dataset_id", "status"},
	)

	// RunDuration tracks ingest run duration
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "registry",
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingest runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"dataset_id"},
	)

	// StagedRecords tracks the size of the last staged batch per dataset
	StagedRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "registry",
			Subsystem: "staging",
			Name:      "records",
			Help:      "Number of records accepted into staging by the last load",
		},
		[]string{"dataset_id"},
	)

	// LockContention tracks runs refused because the dataset was locked
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "ingest",
			Name:      "lock_contention_total",
			Help:      "Total number of runs refused because another run held the dataset lock",
		},
		[]string{"dataset_id"},
	)

	// KafkaMessagesPublished tracks product events published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "registry",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// SourceFetchDuration tracks how long fetching a source document takes
	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "registry",
			Subsystem: "sources",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of source document fetches in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"scheme", "status"},
	)
)

// RecordOutcome records one synchronized record
func RecordOutcome(datasetID, outcome string) {
	RecordsTotal.WithLabelValues(datasetID, outcome).Inc()
}

// RecordTransaction records a record transaction's duration
func RecordTransaction(datasetID string, durationSeconds float64) {
	TransactionDuration.WithLabelValues(datasetID).Observe(durationSeconds)
}

// RecordRetry records a retried record transaction
func RecordRetry(datasetID, kind string) {
	TransactionRetries.WithLabelValues(datasetID, kind).Inc()
}

// RecordRun records a finished ingest run
func RecordRun(datasetID, status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(datasetID, status).Inc()
	RunDuration.WithLabelValues(datasetID).Observe(durationSeconds)
}

// SetStaged records the accepted size of a dataset's last load
func SetStaged(datasetID string, count int) {
	StagedRecords.WithLabelValues(datasetID).Set(float64(count))
}

// RecordLockContention records a run refused by the dataset lock
func RecordLockContention(datasetID string) {
	LockContention.WithLabelValues(datasetID).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordSourceFetch records a source document fetch
func RecordSourceFetch(scheme, status string, durationSeconds float64) {
	SourceFetchDuration.WithLabelValues(scheme, status).Observe(durationSeconds)
}
