package job

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sl224/casparianflow-sub002/logging"
)

// Collector manages all metrics for the validation engine.
type Collector struct {
	logger *logging.ComponentLogger

	// Counters
	rowsValidated   prometheus.Counter
	rowsQuarantined prometheus.Counter
	batchesTotal    prometheus.Counter
	batchesRejected prometheus.Counter
	jobsCompleted   prometheus.Counter
	jobsFailed      prometheus.Counter
	errorsTotal     prometheus.Counter

	// Gauges
	activeJobs    prometheus.Gauge
	quarantinePct prometheus.Gauge

	// Histograms
	batchDuration prometheus.Histogram
	jobDuration   prometheus.Histogram

	registry *prometheus.Registry
}

// NewCollector creates a metrics collector with a private registry.
func NewCollector(logger *logging.ComponentLogger) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		logger:   logger,
		registry: registry,

		rowsValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_engine_rows_validated_total",
			Help: "Total number of rows that passed validation",
		}),
		rowsQuarantined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_engine_rows_quarantined_total",
			Help: "Total number of rows routed to quarantine",
		}),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_engine_batches_processed_total",
			Help: "Total number of record batches validated",
		}),
		batchesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_engine_batches_shape_rejected_total",
			Help: "Total number of batches rejected at the shape check",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_engine_jobs_completed_total",
			Help: "Total number of validation jobs completed",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_engine_jobs_failed_total",
			Help: "Total number of validation jobs that exceeded thresholds",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_engine_errors_total",
			Help: "Total number of errors",
		}),

		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schema_engine_active_jobs",
			Help: "Number of validation jobs currently running",
		}),
		quarantinePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schema_engine_quarantine_pct",
			Help: "Quarantine percentage of the most recent job",
		}),

		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schema_engine_batch_duration_seconds",
			Help:    "Time spent validating a single batch",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schema_engine_job_duration_seconds",
			Help:    "Time spent running a validation job",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	registry.MustRegister(
		c.rowsValidated,
		c.rowsQuarantined,
		c.batchesTotal,
		c.batchesRejected,
		c.jobsCompleted,
		c.jobsFailed,
		c.errorsTotal,
		c.activeJobs,
		c.quarantinePct,
		c.batchDuration,
		c.jobDuration,
	)
	registry.MustRegister(prometheus.NewGoCollector())

	return c
}

// Registry exposes the private registry for the metrics HTTP handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordBatch folds one batch outcome into the counters.
func (c *Collector) RecordBatch(accepted, quarantined int64, shapeRejected bool, dur time.Duration) {
	c.batchesTotal.Inc()
	if shapeRejected {
		c.batchesRejected.Inc()
	}
	c.rowsValidated.Add(float64(accepted))
	c.rowsQuarantined.Add(float64(quarantined))
	c.batchDuration.Observe(dur.Seconds())
}

// RecordJob folds one finished job into the counters.
func (c *Collector) RecordJob(report Report, dur time.Duration) {
	if report.ThresholdExceeded {
		c.jobsFailed.Inc()
	} else {
		c.jobsCompleted.Inc()
	}
	c.quarantinePct.Set(report.QuarantinePct)
	c.jobDuration.Observe(dur.Seconds())
}

// RecordError increments the error counter.
func (c *Collector) RecordError() {
	c.errorsTotal.Inc()
}

// JobStarted increments the active-jobs gauge.
func (c *Collector) JobStarted() { c.activeJobs.Inc() }

// JobFinished decrements the active-jobs gauge.
func (c *Collector) JobFinished() { c.activeJobs.Dec() }
