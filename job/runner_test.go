package job

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/sl224/casparianflow-sub002/logging"
	"github.com/sl224/casparianflow-sub002/quarantine"
	"github.com/sl224/casparianflow-sub002/registry"
	"github.com/sl224/casparianflow-sub002/schema"
)

func runnerLogger() *logging.ComponentLogger {
	return logging.NewComponentLogger("job-test", "test")
}

func approvedRegistry(t *testing.T, scopeID string) *registry.Registry {
	t.Helper()
	r, err := registry.Open(context.Background(), registry.NewMemoryStore(), runnerLogger())
	if err != nil {
		t.Fatal(err)
	}
	draft, err := r.Propose(scopeID, []schema.LockedSchema{{
		Name: "transfers",
		Mode: schema.ModeStrict,
		Columns: []schema.ColumnSpec{
			{Name: "id", Type: schema.Int64()},
			{Name: "price", Type: schema.Decimal(18, 8)},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Approve(context.Background(), draft, "alice"); err != nil {
		t.Fatal(err)
	}
	return r
}

// priceBatch builds a batch with string prices; empty strings become nulls.
func priceBatch(t *testing.T, baseID int64, prices []string) arrow.Record {
	t.Helper()
	fields := []arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "price", Type: arrow.BinaryTypes.String, Nullable: true},
	}
	rb := array.NewRecordBuilder(memory.DefaultAllocator, arrow.NewSchema(fields, nil))
	defer rb.Release()
	ids := rb.Field(0).(*array.Int64Builder)
	pb := rb.Field(1).(*array.StringBuilder)
	for i, p := range prices {
		ids.Append(baseID + int64(i))
		if p == "" {
			pb.AppendNull()
		} else {
			pb.Append(p)
		}
	}
	return rb.NewRecord()
}

func TestRunnerHappyPath(t *testing.T) {
	reg := approvedRegistry(t, "scope1")
	defer reg.Close()

	validSink := quarantine.NewMemorySink()
	defer validSink.Close()
	qSink := quarantine.NewMemorySink()
	defer qSink.Close()
	qw := quarantine.NewWriter(memory.DefaultAllocator, qSink, runnerLogger())

	runner := NewRunner(reg, memory.DefaultAllocator, qw, validSink, nil, 2, runnerLogger())

	batches := make(chan Batch, 3)
	batches <- Batch{Record: priceBatch(t, 0, []string{"1.5", "2.5", ""}), FilePath: "a.jsonl", BaseRow: 0}
	batches <- Batch{Record: priceBatch(t, 3, []string{"3.5", "4.5"}), FilePath: "a.jsonl", BaseRow: 3}
	batches <- Batch{Record: priceBatch(t, 5, []string{"5.5"}), FilePath: "b.jsonl", BaseRow: 0}
	close(batches)

	report, err := runner.Run(context.Background(), "scope1", "tx-parser", "1.0.0", "transfers",
		Thresholds{MaxQuarantinePct: 50.0}, batches)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.RowsTotal != 6 || report.RowsAccepted != 5 || report.RowsQuarantined != 1 {
		t.Errorf("report = %+v", report)
	}
	if validSink.Rows() != 5 {
		t.Errorf("valid sink rows = %d, want 5", validSink.Rows())
	}
	if qSink.Rows() != 1 {
		t.Errorf("quarantine sink rows = %d, want 1", qSink.Rows())
	}
	if report.ThresholdExceeded {
		t.Error("threshold should not be exceeded")
	}
}

func TestRunnerThresholdAborts(t *testing.T) {
	reg := approvedRegistry(t, "scope1")
	defer reg.Close()

	qSink := quarantine.NewMemorySink()
	defer qSink.Close()
	qw := quarantine.NewWriter(memory.DefaultAllocator, qSink, runnerLogger())

	runner := NewRunner(reg, memory.DefaultAllocator, qw, nil, nil, 1, runnerLogger())

	batches := make(chan Batch, 2)
	// 2 of 3 rows quarantine: 66% against a 10% threshold.
	batches <- Batch{Record: priceBatch(t, 0, []string{"1.5", "", ""}), FilePath: "a.jsonl"}
	batches <- Batch{Record: priceBatch(t, 3, []string{"2.5"}), FilePath: "a.jsonl", BaseRow: 3}
	close(batches)

	report, err := runner.Run(context.Background(), "scope1", "tx-parser", "1.0.0", "transfers",
		Thresholds{MaxQuarantinePct: 10.0}, batches)
	var te *ThresholdError
	if !errors.As(err, &te) {
		t.Fatalf("expected ThresholdError, got %v", err)
	}
	if !report.ThresholdExceeded {
		t.Error("report should mark the threshold exceeded")
	}
	// The quarantined rows from the tripping batch were still written.
	if qSink.Rows() != 2 {
		t.Errorf("quarantine sink rows = %d, want 2", qSink.Rows())
	}
}

func TestRunnerUnresolvedScope(t *testing.T) {
	reg := approvedRegistry(t, "scope1")
	defer reg.Close()

	runner := NewRunner(reg, memory.DefaultAllocator, nil, nil, nil, 1, runnerLogger())

	batches := make(chan Batch)
	close(batches)

	_, err := runner.Run(context.Background(), "unknown-scope", "p", "1", "transfers",
		Thresholds{MaxQuarantinePct: 10.0}, batches)
	if !errors.Is(err, registry.ErrNoContract) {
		t.Fatalf("expected ErrNoContract, got %v", err)
	}
}

func TestRunnerPassthroughWithoutContract(t *testing.T) {
	reg := approvedRegistry(t, "scope1")
	defer reg.Close()

	validSink := quarantine.NewMemorySink()
	defer validSink.Close()

	runner := NewRunner(reg, memory.DefaultAllocator, nil, validSink, nil, 1, runnerLogger())
	runner.AllowUnresolved(true)

	batches := make(chan Batch, 2)
	batches <- Batch{Record: priceBatch(t, 0, []string{"1.5", ""}), FilePath: "a.jsonl"}
	batches <- Batch{Record: priceBatch(t, 2, []string{"2.5"}), FilePath: "a.jsonl", BaseRow: 2}
	close(batches)

	report, err := runner.Run(context.Background(), "unknown-scope", "p", "1", "transfers",
		Thresholds{MaxQuarantinePct: 10.0}, batches)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Everything passes through untouched, nulls included.
	if report.RowsTotal != 3 || report.RowsAccepted != 3 || report.RowsQuarantined != 0 {
		t.Errorf("report = %+v", report)
	}
	if validSink.Rows() != 3 {
		t.Errorf("valid sink rows = %d, want 3", validSink.Rows())
	}
}

func TestRunnerContextCancellation(t *testing.T) {
	reg := approvedRegistry(t, "scope1")
	defer reg.Close()

	runner := NewRunner(reg, memory.DefaultAllocator, nil, nil, nil, 1, runnerLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batches := make(chan Batch, 1)
	batches <- Batch{Record: priceBatch(t, 0, []string{"1.5"}), FilePath: "a.jsonl"}
	close(batches)

	_, err := runner.Run(ctx, "scope1", "p", "1", "transfers",
		Thresholds{MaxQuarantinePct: 10.0}, batches)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
