package validator

import "fmt"

// ViolationKind classifies a contract violation.
type ViolationKind string

const (
	// Shape violations: fatal to the whole batch.
	KindColumnMissing ViolationKind = "ColumnMissing"
	KindColumnExtra   ViolationKind = "ColumnExtra"
	// TypeMismatch is batch-level when a column's physical type is
	// incompatible with the declaration, and row-level when a single
	// textual value fails to parse as the declared type.
	KindTypeMismatch ViolationKind = "TypeMismatch"

	// Value violations: isolated to the offending row.
	KindNullNotAllowed    ViolationKind = "NullNotAllowed"
	KindPrecisionExceeded ViolationKind = "PrecisionExceeded"
	KindTimezoneRequired  ViolationKind = "TimezoneRequired"
)

// BatchRow marks a violation that applies to every row of a batch rather
// than a single one.
const BatchRow int64 = -1

// Violation is one structured contract violation. Value-level violations
// are never raised as errors; they are captured as data and routed to
// quarantine with the row they belong to.
type Violation struct {
	ParserID      string        `json:"parser_id"`
	ParserVersion string        `json:"parser_version"`
	FilePath      string        `json:"file_path,omitempty"`
	Row           int64         `json:"row"`
	Column        string        `json:"column"`
	Kind          ViolationKind `json:"kind"`
	Expected      string        `json:"expected"`
	Actual        string        `json:"actual"`
	Suggestion    string        `json:"suggestion,omitempty"`
}

// Message renders the violation for quarantine diagnostics.
func (v Violation) Message() string {
	if v.Row == BatchRow {
		return fmt.Sprintf("%s: column %q expected %s, got %s", v.Kind, v.Column, v.Expected, v.Actual)
	}
	return fmt.Sprintf("%s: column %q row %d expected %s, got %s", v.Kind, v.Column, v.Row, v.Expected, v.Actual)
}

// BatchMeta carries lineage for the batch being validated; it is stamped
// onto every violation.
type BatchMeta struct {
	JobID         string
	ParserID      string
	ParserVersion string
	FilePath      string
	// BaseRow is the source-file row index of the batch's first row, so
	// violations and quarantine records carry absolute positions.
	BaseRow int64
}

// RowFailure groups the violations that quarantined one row.
type RowFailure struct {
	// Row is the index within the batch.
	Row int
	// SourceRow is BaseRow + Row, the absolute source position.
	SourceRow  int64
	Violations []Violation
}
