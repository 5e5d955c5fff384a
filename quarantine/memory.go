package quarantine

import (
	"context"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
)

// MemorySink retains written records in memory. Used by tests and by
// interactive preview, which shows quarantine rows without persisting them.
type MemorySink struct {
	mu      sync.Mutex
	records []arrow.Record
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write retains the record.
func (s *MemorySink) Write(_ context.Context, rec arrow.Record) error {
	rec.Retain()
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

// Records returns the retained records in write order.
func (s *MemorySink) Records() []arrow.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]arrow.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Rows returns the total row count written.
func (s *MemorySink) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.records {
		n += r.NumRows()
	}
	return n
}

// Close releases the retained records.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		r.Release()
	}
	s.records = nil
	return nil
}
