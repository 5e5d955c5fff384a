package job

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sl224/casparianflow-sub002/validator"
)

// Thresholds bounds how much quarantine a job tolerates before failing.
type Thresholds struct {
	// MaxQuarantinePct fails the job once quarantined/total exceeds this
	// percentage.
	MaxQuarantinePct float64
	// MaxQuarantineCount fails the job once this many rows are
	// quarantined. 0 means unlimited.
	MaxQuarantineCount int64
	// WarnOnQuarantine logs a warning for every quarantining batch.
	WarnOnQuarantine bool
	// SampleSize is how many violations to retain for triage.
	SampleSize int
}

// ThresholdError is returned when a job exceeds its quarantine budget.
type ThresholdError struct {
	JobID       string
	Quarantined int64
	Total       int64
	Pct         float64
	// Limit describes which threshold fired.
	Limit string
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("job %s exceeded quarantine threshold (%s): %d of %d rows quarantined (%.2f%%)",
		e.JobID, e.Limit, e.Quarantined, e.Total, e.Pct)
}

// Tracker accumulates per-job validation outcomes and decides when the
// quarantine thresholds have been crossed. All counters are atomic so
// concurrent batch workers can record without a lock; the threshold
// decision reads the counters after its own update, so two batches
// finishing together cannot both slip under the limit.
type Tracker struct {
	jobID      string
	thresholds Thresholds

	rowsTotal       atomic.Int64
	rowsAccepted    atomic.Int64
	rowsQuarantined atomic.Int64
	batchesTotal    atomic.Int64
	batchesRejected atomic.Int64
	tripped         atomic.Bool

	mu     sync.Mutex
	sample []validator.Violation
}

// NewTracker creates a tracker for one job.
func NewTracker(jobID string, thresholds Thresholds) *Tracker {
	if thresholds.SampleSize <= 0 {
		thresholds.SampleSize = 10
	}
	return &Tracker{jobID: jobID, thresholds: thresholds}
}

// RecordBatch folds one batch result into the job counters and reports
// whether the job threshold has now been exceeded. The returned error is
// non-nil exactly once: the first caller to cross the limit trips the
// tracker, later batches see a nil error and should stop via context.
func (t *Tracker) RecordBatch(res *validator.Result) error {
	accepted := res.Accepted()
	quarantined := res.Quarantined()

	t.batchesTotal.Add(1)
	if res.ShapeRejected {
		t.batchesRejected.Add(1)
	}
	t.rowsAccepted.Add(accepted)
	total := t.rowsTotal.Add(accepted + quarantined)
	bad := t.rowsQuarantined.Add(quarantined)

	if quarantined > 0 {
		t.retainSample(res)
	}

	limit := ""
	if t.thresholds.MaxQuarantineCount > 0 && bad > t.thresholds.MaxQuarantineCount {
		limit = "max_quarantine_count"
	}
	pct := 0.0
	if total > 0 {
		pct = float64(bad) / float64(total) * 100
	}
	if limit == "" && pct > t.thresholds.MaxQuarantinePct {
		limit = "max_quarantine_pct"
	}
	if limit == "" {
		return nil
	}
	if !t.tripped.CompareAndSwap(false, true) {
		return nil
	}
	return &ThresholdError{
		JobID:       t.jobID,
		Quarantined: bad,
		Total:       total,
		Pct:         pct,
		Limit:       limit,
	}
}

func (t *Tracker) retainSample(res *validator.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range res.Failures {
		for _, v := range f.Violations {
			if len(t.sample) >= t.thresholds.SampleSize {
				return
			}
			t.sample = append(t.sample, v)
		}
	}
}

// Tripped reports whether any batch crossed the threshold.
func (t *Tracker) Tripped() bool { return t.tripped.Load() }

// Report snapshots the job counters.
func (t *Tracker) Report() Report {
	t.mu.Lock()
	sample := make([]validator.Violation, len(t.sample))
	copy(sample, t.sample)
	t.mu.Unlock()

	total := t.rowsTotal.Load()
	bad := t.rowsQuarantined.Load()
	pct := 0.0
	if total > 0 {
		pct = float64(bad) / float64(total) * 100
	}
	return Report{
		JobID:              t.jobID,
		RowsTotal:          total,
		RowsAccepted:       t.rowsAccepted.Load(),
		RowsQuarantined:    bad,
		QuarantinePct:      pct,
		BatchesProcessed:   t.batchesTotal.Load(),
		BatchesShapeFailed: t.batchesRejected.Load(),
		ThresholdExceeded:  t.tripped.Load(),
		ViolationSample:    sample,
	}
}

// Report summarizes a completed (or aborted) validation job.
type Report struct {
	JobID              string                `json:"job_id"`
	RowsTotal          int64                 `json:"rows_total"`
	RowsAccepted       int64                 `json:"rows_accepted"`
	RowsQuarantined    int64                 `json:"rows_quarantined"`
	QuarantinePct      float64               `json:"quarantine_pct"`
	BatchesProcessed   int64                 `json:"batches_processed"`
	BatchesShapeFailed int64                 `json:"batches_shape_failed"`
	ThresholdExceeded  bool                  `json:"threshold_exceeded"`
	ViolationSample    []validator.Violation `json:"violation_sample,omitempty"`
}
