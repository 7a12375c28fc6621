package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	exportsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirakl_orchestrator",
			Subsystem: "kafka_consumer",
			Name:      "exports_processed_total",
			Help:      "Total number of successfully ingested marketplace exports",
		},
	)

	exportsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirakl_orchestrator",
			Subsystem: "kafka_consumer",
			Name:      "exports_failed_total",
			Help:      "Total number of failed export ingest attempts",
		},
	)

	exportsDLQ = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirakl_orchestrator",
			Subsystem: "kafka_consumer",
			Name:      "exports_dlq_total",
			Help:      "Total number of exports written to DLQ",
		},
	)

	commitErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirakl_orchestrator",
			Subsystem: "kafka_consumer",
			Name:      "commit_errors_total",
			Help:      "Total number of Kafka commit errors",
		},
	)

	ordersIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirakl_orchestrator",
			Subsystem: "kafka_consumer",
			Name:      "orders_ingested_total",
			Help:      "Total number of orders accepted from consumed exports",
		},
	)
)

var (
	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirakl_orchestrator",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline stage runs by outcome",
		},
		[]string{"stage", "status"},
	)

	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirakl_orchestrator",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Histogram of pipeline stage run durations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(
		exportsProcessed,
		exportsFailed,
		exportsDLQ,
		commitErrors,
		ordersIngested,

		pipelineRuns,
		pipelineDuration,
	)
}
