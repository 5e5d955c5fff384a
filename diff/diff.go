// Package diff compares a declared (intent) schema against a schema
// observed from sampled execution. The diff is advisory: intent is
// authoritative whenever both exist, and nothing here ever mutates a
// contract. The output is rendered for a human approver.
package diff

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/decimal128"

	"github.com/sl224/casparianflow-sub002/schema"
)

// ObservedColumn summarizes one column seen in sampled output.
type ObservedColumn struct {
	Name     string
	Type     schema.DataType
	Nullable bool
	Rows     int64
	Nulls    int64
}

// NullFraction is the fraction of sampled values that were null.
func (c ObservedColumn) NullFraction() float64 {
	if c.Rows == 0 {
		return 0
	}
	return float64(c.Nulls) / float64(c.Rows)
}

// Observation is a schema plus sampling statistics derived from executed
// batches.
type Observation struct {
	Rows    int64
	Columns []ObservedColumn

	records []arrow.Record
}

// Column returns the observed column with the given name.
func (o *Observation) Column(name string) (ObservedColumn, bool) {
	for _, c := range o.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ObservedColumn{}, false
}

// Observe builds an observation from sampled records. Records are consumed
// whole until sampleLimit rows have been seen (0 means no limit). The
// records must stay alive while the observation is compared.
func Observe(records []arrow.Record, sampleLimit int64) (*Observation, error) {
	if len(records) == 0 {
		return &Observation{}, nil
	}

	sch := records[0].Schema()
	obs := &Observation{}
	cols := make([]ObservedColumn, sch.NumFields())
	for i, f := range sch.Fields() {
		dt, err := schema.DataTypeFromArrow(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		cols[i] = ObservedColumn{Name: f.Name, Type: dt}
	}

	for _, rec := range records {
		if !rec.Schema().Equal(sch) {
			return nil, fmt.Errorf("sampled records disagree on schema")
		}
		obs.records = append(obs.records, rec)
		obs.Rows += rec.NumRows()
		for i := range cols {
			cols[i].Rows += rec.NumRows()
			cols[i].Nulls += int64(rec.Column(i).NullN())
		}
		if sampleLimit > 0 && obs.Rows >= sampleLimit {
			break
		}
	}

	for i := range cols {
		cols[i].Nullable = cols[i].Nulls > 0
	}
	obs.Columns = cols
	return obs, nil
}

// TypeMismatch reports a column whose observed type differs from intent.
type TypeMismatch struct {
	Column   string
	Intent   schema.DataType
	Observed schema.DataType
	// Coercible/Uncoercible count observed non-null values that would or
	// would not survive coercion to the intent type. Only populated when
	// the observed column is string-typed.
	Coercible   int64
	Uncoercible int64
}

// NullabilityMismatch reports a column declared non-nullable that carried
// nulls, or declared nullable but observed fully populated.
type NullabilityMismatch struct {
	Column         string
	IntentNullable bool
	NullFraction   float64
}

// SchemaDiff is the structured result shown to the approver.
type SchemaDiff struct {
	SchemaName            string
	RowsSampled           int64
	Missing               []schema.ColumnSpec
	Extra                 []ObservedColumn
	TypeMismatches        []TypeMismatch
	NullabilityMismatches []NullabilityMismatch
}

// Empty reports whether intent and observation agree.
func (d *SchemaDiff) Empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0 &&
		len(d.TypeMismatches) == 0 && len(d.NullabilityMismatches) == 0
}

// Summary renders the diff for the approval surface.
func (d *SchemaDiff) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema %q: %d rows sampled\n", d.SchemaName, d.RowsSampled)
	if d.Empty() {
		b.WriteString("  observation matches intent\n")
		return b.String()
	}
	for _, c := range d.Missing {
		fmt.Fprintf(&b, "  missing: %s %s (declared, not observed)\n", c.Name, c.Type)
	}
	for _, c := range d.Extra {
		fmt.Fprintf(&b, "  extra: %s %s (observed, not declared)\n", c.Name, c.Type)
	}
	for _, m := range d.TypeMismatches {
		fmt.Fprintf(&b, "  type: %s declared %s, observed %s", m.Column, m.Intent, m.Observed)
		if m.Coercible+m.Uncoercible > 0 {
			fmt.Fprintf(&b, " (%d coercible, %d not)", m.Coercible, m.Uncoercible)
		}
		b.WriteString("\n")
	}
	for _, m := range d.NullabilityMismatches {
		if m.IntentNullable {
			fmt.Fprintf(&b, "  nullability: %s declared nullable, observed fully populated\n", m.Column)
		} else {
			fmt.Fprintf(&b, "  nullability: %s declared non-nullable, observed %.1f%% null\n", m.Column, m.NullFraction*100)
		}
	}
	return b.String()
}

func (d *SchemaDiff) String() string { return d.Summary() }

// Compare diffs declared intent against an observation.
func Compare(intent schema.LockedSchema, obs *Observation) *SchemaDiff {
	d := &SchemaDiff{SchemaName: intent.Name, RowsSampled: obs.Rows}

	declared := make(map[string]bool, len(intent.Columns))
	for _, c := range intent.Columns {
		declared[c.Name] = true
		oc, ok := obs.Column(c.Name)
		if !ok {
			d.Missing = append(d.Missing, c)
			continue
		}
		if !c.Type.Equal(oc.Type) {
			m := TypeMismatch{Column: c.Name, Intent: c.Type, Observed: oc.Type}
			if oc.Type.Kind == schema.KindString {
				m.Coercible, m.Uncoercible = countCoercible(obs.records, c)
			}
			d.TypeMismatches = append(d.TypeMismatches, m)
		}
		if !c.Nullable && oc.Nulls > 0 {
			d.NullabilityMismatches = append(d.NullabilityMismatches, NullabilityMismatch{
				Column:         c.Name,
				IntentNullable: false,
				NullFraction:   oc.NullFraction(),
			})
		} else if c.Nullable && oc.Rows > 0 && oc.Nulls == 0 {
			d.NullabilityMismatches = append(d.NullabilityMismatches, NullabilityMismatch{
				Column:         c.Name,
				IntentNullable: true,
			})
		}
	}

	for _, oc := range obs.Columns {
		if !declared[oc.Name] {
			d.Extra = append(d.Extra, oc)
		}
	}
	return d
}

// countCoercible scans sampled string values and counts how many would
// survive coercion to the intent type.
func countCoercible(records []arrow.Record, intent schema.ColumnSpec) (coercible, uncoercible int64) {
	for _, rec := range records {
		indices := rec.Schema().FieldIndices(intent.Name)
		if len(indices) == 0 {
			continue
		}
		col, ok := rec.Column(indices[0]).(*array.String)
		if !ok {
			continue
		}
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				continue
			}
			if coercesTo(col.Value(i), intent.Type) {
				coercible++
			} else {
				uncoercible++
			}
		}
	}
	return coercible, uncoercible
}

func coercesTo(v string, dt schema.DataType) bool {
	switch dt.Kind {
	case schema.KindString:
		return true
	case schema.KindInt64:
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	case schema.KindFloat64:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	case schema.KindBoolean:
		_, err := strconv.ParseBool(v)
		return err == nil
	case schema.KindDate:
		_, err := time.Parse("2006-01-02", v)
		return err == nil
	case schema.KindDecimal:
		_, err := decimal128.FromString(v, dt.Precision, dt.Scale)
		return err == nil
	case schema.KindTimestamp, schema.KindTimestampTz:
		_, _, err := schema.ParseTimestamp(v)
		return err == nil
	default:
		return false
	}
}
