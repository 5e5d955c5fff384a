package quarantine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/sl224/casparianflow-sub002/logging"
)

// DuckDBSink appends records to a DuckDB table, creating the table from
// the first record's schema. Used for both quarantine output and valid-row
// output so the two sides of a job live in the same database.
type DuckDBSink struct {
	db     *sql.DB
	table  string
	logger *logging.ComponentLogger

	mu      sync.Mutex
	created bool
}

// NewDuckDBSink opens (or creates) the DuckDB database at path and targets
// the named table.
func NewDuckDBSink(path, table string, logger *logging.ComponentLogger) (*DuckDBSink, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}
	return &DuckDBSink{db: db, table: table, logger: logger}, nil
}

// Write appends all rows of the record inside one transaction.
func (s *DuckDBSink) Write(ctx context.Context, rec arrow.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		if err := s.createTable(ctx, rec.Schema()); err != nil {
			return err
		}
		s.created = true
	}

	placeholders := make([]string, rec.NumCols())
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", s.table, strings.Join(placeholders, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, rec.NumCols())
	for row := 0; row < int(rec.NumRows()); row++ {
		for ci := 0; ci < int(rec.NumCols()); ci++ {
			args[ci] = columnValue(rec.Column(ci), row)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row %d: %w", row, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *DuckDBSink) Close() error {
	return s.db.Close()
}

func (s *DuckDBSink) createTable(ctx context.Context, sch *arrow.Schema) error {
	cols := make([]string, 0, sch.NumFields())
	for _, f := range sch.Fields() {
		sqlType, err := duckdbType(f.Type)
		if err != nil {
			return fmt.Errorf("column %q: %w", f.Name, err)
		}
		null := " NOT NULL"
		if f.Nullable {
			null = ""
		}
		cols = append(cols, fmt.Sprintf("%q %s%s", f.Name, sqlType, null))
	}
	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.table, strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	s.logger.Info().Str("table", s.table).Int("columns", len(cols)).Msg("Ensured output table")
	return nil
}

func duckdbType(dt arrow.DataType) (string, error) {
	switch t := dt.(type) {
	case *arrow.StringType:
		return "VARCHAR", nil
	case *arrow.Int64Type:
		return "BIGINT", nil
	case *arrow.Float64Type:
		return "DOUBLE", nil
	case *arrow.BooleanType:
		return "BOOLEAN", nil
	case *arrow.Date32Type:
		return "DATE", nil
	case *arrow.BinaryType:
		return "BLOB", nil
	case *arrow.Decimal128Type:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale), nil
	case *arrow.TimestampType:
		if t.TimeZone != "" {
			return "TIMESTAMP WITH TIME ZONE", nil
		}
		return "TIMESTAMP", nil
	case *arrow.ListType, *arrow.StructType:
		// Nested values are stored in their JSON text rendering.
		return "VARCHAR", nil
	default:
		return "", fmt.Errorf("unsupported arrow type %s", dt)
	}
}

// columnValue extracts one value as a database/sql argument. Nested types
// fall back to their text rendering.
func columnValue(col arrow.Array, row int) any {
	if col.IsNull(row) {
		return nil
	}
	switch c := col.(type) {
	case *array.String:
		return c.Value(row)
	case *array.Int64:
		return c.Value(row)
	case *array.Float64:
		return c.Value(row)
	case *array.Boolean:
		return c.Value(row)
	case *array.Binary:
		return c.Value(row)
	default:
		return col.ValueStr(row)
	}
}
