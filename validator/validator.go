// Package validator partitions arriving columnar batches into rows that
// satisfy the resolved contract and rows routed to quarantine. The shape
// check costs O(columns); value checks run column-at-a-time over the whole
// batch. The same function serves interactive preview and production
// execution so the two can never diverge.
package validator

import (
	"fmt"
	"sort"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/sl224/casparianflow-sub002/logging"
	"github.com/sl224/casparianflow-sub002/schema"
)

// Result is the outcome of validating one batch.
type Result struct {
	// Valid holds the accepted rows, normalized to the contract's column
	// order and physical types. Always non-nil; the caller releases it.
	Valid arrow.Record
	// Failures lists quarantined rows in batch order, each with every
	// violation that applies to it.
	Failures []RowFailure
	// Violations flattens all violations: batch-level shape violations
	// first (Row == BatchRow), then row-level ones in row order.
	Violations []Violation
	// ShapeRejected marks a batch whose column set or physical types did
	// not match the contract; every row is quarantined and no values were
	// checked.
	ShapeRejected bool
	// Rows is the total row count of the incoming batch.
	Rows int64
}

// Accepted returns the number of rows that passed every check.
func (r *Result) Accepted() int64 {
	return r.Valid.NumRows()
}

// Quarantined returns the number of rows routed to quarantine.
func (r *Result) Quarantined() int64 {
	return int64(len(r.Failures))
}

// Validator validates batches against locked schemas.
type Validator struct {
	mem    memory.Allocator
	logger *logging.ComponentLogger
}

// New creates a validator. A nil allocator uses the default.
func New(mem memory.Allocator, logger *logging.ComponentLogger) *Validator {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Validator{mem: mem, logger: logger}
}

// Validate partitions a batch against one locked schema of the contract.
// Every row lands in exactly one of valid or quarantine. Validation is
// synchronous and CPU-bound; it performs no I/O and never raises value
// violations as errors. The returned error covers only misuse (unknown
// output name, unbuildable schema), not data problems.
func (v *Validator) Validate(rec arrow.Record, contract *schema.SchemaContract, outputName string, meta BatchMeta) (*Result, error) {
	ls, ok := contract.Schema(outputName)
	if !ok {
		return nil, fmt.Errorf("contract %s has no schema for output %q", contract.ContractID, outputName)
	}

	outSchema, err := ls.ArrowSchema()
	if err != nil {
		return nil, fmt.Errorf("schema %q is not representable: %w", ls.Name, err)
	}

	res := &Result{Rows: rec.NumRows()}
	stamp := func(row int64, kind ViolationKind, column, expected, actual string) Violation {
		return Violation{
			ParserID:      meta.ParserID,
			ParserVersion: meta.ParserVersion,
			FilePath:      meta.FilePath,
			Row:           row,
			Column:        column,
			Kind:          kind,
			Expected:      expected,
			Actual:        actual,
		}
	}

	// Shape check: O(columns). Resolve each declared column to a batch
	// column (or a null backfill where the mode tolerates absence) and
	// collect batch columns the declaration does not cover.
	batchCols := make(map[string]int, rec.NumCols())
	for i := 0; i < int(rec.NumCols()); i++ {
		name := rec.Schema().Field(i).Name
		if _, dup := batchCols[name]; dup {
			res.Violations = append(res.Violations,
				stamp(BatchRow, KindColumnExtra, name, "column declared once", "duplicate column"))
			continue
		}
		batchCols[name] = i
	}

	checkers := make([]columnChecker, len(ls.Columns))
	var shapeViolations []Violation
	declared := make(map[string]bool, len(ls.Columns))
	for ci, col := range ls.Columns {
		declared[col.Name] = true
		idx, present := batchCols[col.Name]
		if !present {
			tolerated := col.Nullable &&
				(ls.Mode == schema.ModeAllowMissingOptional || ls.Mode == schema.ModeAllowExtra)
			if tolerated {
				checkers[ci] = &backfillChecker{}
				continue
			}
			shapeViolations = append(shapeViolations,
				stamp(BatchRow, KindColumnMissing, col.Name, col.Type.String(), "absent"))
			continue
		}
		checker, err := compileChecker(col, rec.Column(idx))
		if err != nil {
			shapeViolations = append(shapeViolations,
				stamp(BatchRow, KindTypeMismatch, col.Name, col.Type.String(), rec.Column(idx).DataType().String()))
			continue
		}
		checkers[ci] = checker
	}

	for i := 0; i < int(rec.NumCols()); i++ {
		name := rec.Schema().Field(i).Name
		if declared[name] {
			continue
		}
		if ls.Mode == schema.ModeStrict || ls.Mode == schema.ModeAllowMissingOptional {
			shapeViolations = append(shapeViolations,
				stamp(BatchRow, KindColumnExtra, name, "not declared", rec.Column(i).DataType().String()))
		}
		// allow_extra: dropped, never copied to valid output.
	}
	res.Violations = append(res.Violations, shapeViolations...)

	if len(res.Violations) > 0 {
		// A shape mismatch is not a per-row-fixable condition: quarantine
		// the whole batch without value checks.
		res.ShapeRejected = true
		res.Failures = make([]RowFailure, rec.NumRows())
		for i := range res.Failures {
			res.Failures[i] = RowFailure{
				Row:        i,
				SourceRow:  meta.BaseRow + int64(i),
				Violations: res.Violations,
			}
		}
		res.Valid = emptyRecord(v.mem, outSchema)
		return res, nil
	}

	// Value checks, column-wise.
	rowFailures := make(map[int][]Violation)
	for _, checker := range checkers {
		checker.check(func(row int, kind ViolationKind, column, expected, actual string) {
			vio := stamp(meta.BaseRow+int64(row), kind, column, expected, actual)
			rowFailures[row] = append(rowFailures[row], vio)
		})
	}

	// Partition. Checkers ran in contract column order, so each row's
	// violation list is already ordered; rows are sorted for determinism.
	failedRows := make([]int, 0, len(rowFailures))
	for row := range rowFailures {
		failedRows = append(failedRows, row)
	}
	sort.Ints(failedRows)

	res.Failures = make([]RowFailure, 0, len(failedRows))
	for _, row := range failedRows {
		res.Failures = append(res.Failures, RowFailure{
			Row:        row,
			SourceRow:  meta.BaseRow + int64(row),
			Violations: rowFailures[row],
		})
		res.Violations = append(res.Violations, rowFailures[row]...)
	}

	rb := array.NewRecordBuilder(v.mem, outSchema)
	defer rb.Release()
	for row := 0; row < int(rec.NumRows()); row++ {
		if _, failed := rowFailures[row]; failed {
			continue
		}
		for ci, checker := range checkers {
			if err := checker.append(rb.Field(ci), row); err != nil {
				return nil, fmt.Errorf("column %q: %w", ls.Columns[ci].Name, err)
			}
		}
	}
	res.Valid = rb.NewRecord()
	return res, nil
}

func emptyRecord(mem memory.Allocator, s *arrow.Schema) arrow.Record {
	rb := array.NewRecordBuilder(mem, s)
	defer rb.Release()
	return rb.NewRecord()
}
