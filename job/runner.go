// Package job coordinates validation jobs: it resolves the contract once,
// fans record batches out to a worker pool, accumulates quarantine
// accounting, and fails the job when the configured thresholds are
// exceeded. A batch that has started validating always runs to
// completion; cancellation takes effect between batches.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/google/uuid"

	"github.com/sl224/casparianflow-sub002/logging"
	"github.com/sl224/casparianflow-sub002/quarantine"
	"github.com/sl224/casparianflow-sub002/registry"
	"github.com/sl224/casparianflow-sub002/schema"
	"github.com/sl224/casparianflow-sub002/validator"
)

// Batch is one unit of work for a job: a record plus its provenance.
type Batch struct {
	Record arrow.Record
	// FilePath is the source file the batch was read from.
	FilePath string
	// BaseRow is the absolute row index of the batch's first row within
	// the source file.
	BaseRow int64
}

// Runner executes validation jobs against the current approved contract.
type Runner struct {
	registry   *registry.Registry
	validator  *validator.Validator
	quarantine *quarantine.Writer
	validSink  quarantine.Sink
	metrics    *Collector
	logger     *logging.ComponentLogger

	workers         int
	allowUnresolved bool
}

// AllowUnresolved lets jobs for scopes without an approved contract run in
// pass-through mode instead of failing. Intended for development
// environments only.
func (r *Runner) AllowUnresolved(v bool) {
	r.allowUnresolved = v
}

// NewRunner wires a job runner. validSink receives the accepted rows;
// pass nil to discard them (useful in tests and dry runs).
func NewRunner(reg *registry.Registry, mem memory.Allocator, qw *quarantine.Writer,
	validSink quarantine.Sink, metrics *Collector, workers int, logger *logging.ComponentLogger) *Runner {

	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		registry:   reg,
		validator:  validator.New(mem, logger),
		quarantine: qw,
		validSink:  validSink,
		metrics:    metrics,
		logger:     logger,
		workers:    workers,
	}
}

// Run validates every batch from batches against the approved contract for
// scopeID, writing accepted rows to the valid sink and rejected rows to
// quarantine. It returns the job report and a non-nil error when the
// quarantine thresholds were exceeded or the contract could not be
// resolved. The batches channel must be closed by the producer.
func (r *Runner) Run(ctx context.Context, scopeID, parserID, parserVersion, outputName string,
	thresholds Thresholds, batches <-chan Batch) (Report, error) {

	start := time.Now()
	jobID := uuid.New().String()

	contract, err := r.registry.Resolve(scopeID)
	if err != nil {
		if errors.Is(err, registry.ErrNoContract) && r.allowUnresolved {
			return r.runPassthrough(ctx, jobID, scopeID, thresholds, start, batches)
		}
		if r.metrics != nil {
			r.metrics.RecordError()
		}
		return Report{JobID: jobID}, fmt.Errorf("resolving contract for scope %s: %w", scopeID, err)
	}

	log := r.logger.With().
		Str("job_id", jobID).
		Str("scope_id", scopeID).
		Str("contract_id", contract.ContractID).
		Int("contract_version", contract.Version).
		Logger()
	log.Info().Int("workers", r.workers).Msg("Starting validation job")

	if r.metrics != nil {
		r.metrics.JobStarted()
		defer r.metrics.JobFinished()
	}

	tracker := NewTracker(jobID, thresholds)
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
		writeMu sync.Mutex
	)
	setErr := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-jobCtx.Done():
					// Drain remaining batches so the producer never
					// blocks on a cancelled job.
					for b := range batches {
						b.Record.Release()
					}
					return
				case b, ok := <-batches:
					if !ok {
						return
					}
					if err := r.runBatch(jobCtx, b, contract, outputName, jobID, parserID, parserVersion, tracker, &writeMu); err != nil {
						setErr(err)
					}
					b.Record.Release()
				}
			}
		}(i)
	}
	wg.Wait()

	report := tracker.Report()
	dur := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordJob(report, dur)
	}

	if runErr != nil {
		log.Error().Err(runErr).
			Int64("rows_quarantined", report.RowsQuarantined).
			Int64("rows_total", report.RowsTotal).
			Msg("Validation job failed")
		return report, runErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	log.Info().
		Int64("rows_total", report.RowsTotal).
		Int64("rows_accepted", report.RowsAccepted).
		Int64("rows_quarantined", report.RowsQuarantined).
		Float64("quarantine_pct", report.QuarantinePct).
		Dur("duration", dur).
		Msg("Validation job complete")
	return report, nil
}

// runPassthrough forwards batches unvalidated when no contract is approved
// for the scope. Every row counts as accepted; nothing is quarantined.
func (r *Runner) runPassthrough(ctx context.Context, jobID, scopeID string,
	thresholds Thresholds, start time.Time, batches <-chan Batch) (Report, error) {

	r.logger.Warn().
		Str("job_id", jobID).
		Str("scope_id", scopeID).
		Msg("No approved contract; running in pass-through mode")

	tracker := NewTracker(jobID, thresholds)
	for b := range batches {
		if err := ctx.Err(); err != nil {
			b.Record.Release()
			continue
		}
		rows := b.Record.NumRows()
		if r.validSink != nil {
			if err := r.validSink.Write(ctx, b.Record); err != nil {
				b.Record.Release()
				return tracker.Report(), fmt.Errorf("writing pass-through rows: %w", err)
			}
		}
		tracker.rowsTotal.Add(rows)
		tracker.rowsAccepted.Add(rows)
		tracker.batchesTotal.Add(1)
		b.Record.Release()
	}

	report := tracker.Report()
	if r.metrics != nil {
		r.metrics.RecordJob(report, time.Since(start))
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// runBatch validates one batch and routes its rows. Sink writes are
// serialized; validation itself runs concurrently.
func (r *Runner) runBatch(ctx context.Context, b Batch, contract *schema.SchemaContract,
	outputName, jobID, parserID, parserVersion string, tracker *Tracker, writeMu *sync.Mutex) error {

	batchStart := time.Now()
	meta := validator.BatchMeta{
		JobID:         jobID,
		ParserID:      parserID,
		ParserVersion: parserVersion,
		FilePath:      b.FilePath,
		BaseRow:       b.BaseRow,
	}

	res, err := r.validator.Validate(b.Record, contract, outputName, meta)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordError()
		}
		return fmt.Errorf("validating batch from %s: %w", b.FilePath, err)
	}
	defer res.Valid.Release()

	writeMu.Lock()
	if r.validSink != nil && res.Accepted() > 0 {
		if err := r.validSink.Write(ctx, res.Valid); err != nil {
			writeMu.Unlock()
			if r.metrics != nil {
				r.metrics.RecordError()
			}
			return fmt.Errorf("writing valid rows: %w", err)
		}
	}
	if r.quarantine != nil && res.Quarantined() > 0 {
		if err := r.quarantine.Write(ctx, b.Record, res.Failures, jobID); err != nil {
			writeMu.Unlock()
			if r.metrics != nil {
				r.metrics.RecordError()
			}
			return fmt.Errorf("writing quarantine rows: %w", err)
		}
	}
	writeMu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordBatch(res.Accepted(), res.Quarantined(), res.ShapeRejected, time.Since(batchStart))
	}
	if res.Quarantined() > 0 && tracker.thresholds.WarnOnQuarantine {
		r.logger.Warn().
			Str("job_id", jobID).
			Str("file_path", b.FilePath).
			Int64("quarantined", res.Quarantined()).
			Int64("accepted", res.Accepted()).
			Bool("shape_rejected", res.ShapeRejected).
			Msg("Batch quarantined rows")
	}
	return tracker.RecordBatch(res)
}
