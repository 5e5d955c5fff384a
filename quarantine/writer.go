// Package quarantine materializes rejected rows into a side-channel with
// full lineage: every original value coerced to text, the source row
// index, a human-readable diagnostic, the serialized original row, and the
// job id. Valid output and quarantine output share the job id, so the
// complete result of a job is the union of the two. Writers only append.
package quarantine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/sl224/casparianflow-sub002/logging"
	"github.com/sl224/casparianflow-sub002/validator"
)

// Lineage columns appended after the original (text-coerced) columns.
const (
	ColSourceRow = "_source_row"
	ColErrorMsg  = "_error_msg"
	ColRawData   = "_raw_data"
	ColJobID     = "_job_id"
)

// Sink receives quarantine or valid-output records. Implementations append
// and never rewrite prior output.
type Sink interface {
	Write(ctx context.Context, rec arrow.Record) error
	Close() error
}

// Writer builds quarantine records and appends them to a sink.
type Writer struct {
	mem    memory.Allocator
	sink   Sink
	logger *logging.ComponentLogger
}

// NewWriter creates a quarantine writer. A nil allocator uses the default.
func NewWriter(mem memory.Allocator, sink Sink, logger *logging.ComponentLogger) *Writer {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Writer{mem: mem, sink: sink, logger: logger}
}

// Schema returns the quarantine schema for a batch schema: the original
// columns as text plus the lineage columns.
func Schema(original *arrow.Schema) *arrow.Schema {
	fields := make([]arrow.Field, 0, original.NumFields()+4)
	for _, f := range original.Fields() {
		fields = append(fields, arrow.Field{Name: f.Name, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	fields = append(fields,
		arrow.Field{Name: ColSourceRow, Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		arrow.Field{Name: ColErrorMsg, Type: arrow.BinaryTypes.String, Nullable: false},
		arrow.Field{Name: ColRawData, Type: arrow.BinaryTypes.String, Nullable: false},
		arrow.Field{Name: ColJobID, Type: arrow.BinaryTypes.String, Nullable: false},
	)
	return arrow.NewSchema(fields, nil)
}

// BuildRecord materializes the quarantined rows of a batch. The caller
// releases the returned record.
func (w *Writer) BuildRecord(rec arrow.Record, failures []validator.RowFailure, jobID string) (arrow.Record, error) {
	qSchema := Schema(rec.Schema())
	rb := array.NewRecordBuilder(w.mem, qSchema)
	defer rb.Release()

	nOrig := int(rec.NumCols())
	for _, failure := range failures {
		row := failure.Row
		raw := make(map[string]any, nOrig)
		for ci := 0; ci < nOrig; ci++ {
			name := rec.Schema().Field(ci).Name
			col := rec.Column(ci)
			if col.IsNull(row) {
				rb.Field(ci).AppendNull()
				raw[name] = nil
				continue
			}
			text := col.ValueStr(row)
			rb.Field(ci).(*array.StringBuilder).Append(text)
			raw[name] = text
		}

		rawJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize row %d: %w", failure.SourceRow, err)
		}

		msgs := make([]string, 0, len(failure.Violations))
		for _, v := range failure.Violations {
			msgs = append(msgs, v.Message())
		}

		rb.Field(nOrig).(*array.Int64Builder).Append(failure.SourceRow)
		rb.Field(nOrig + 1).(*array.StringBuilder).Append(strings.Join(msgs, "; "))
		rb.Field(nOrig + 2).(*array.StringBuilder).Append(string(rawJSON))
		rb.Field(nOrig + 3).(*array.StringBuilder).Append(jobID)
	}

	return rb.NewRecord(), nil
}

// Write builds and appends the quarantine record for a batch's failures.
// A batch with no failures writes nothing.
func (w *Writer) Write(ctx context.Context, rec arrow.Record, failures []validator.RowFailure, jobID string) error {
	if len(failures) == 0 {
		return nil
	}
	qRec, err := w.BuildRecord(rec, failures, jobID)
	if err != nil {
		return err
	}
	defer qRec.Release()

	if err := w.sink.Write(ctx, qRec); err != nil {
		return fmt.Errorf("failed to append quarantine records: %w", err)
	}
	w.logger.Debug().
		Str("job_id", jobID).
		Int("rows", len(failures)).
		Msg("Appended quarantine records")
	return nil
}
