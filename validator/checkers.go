package validator

import (
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/decimal128"

	"github.com/sl224/casparianflow-sub002/schema"
)

// failFunc records a value violation against a batch-local row index.
type failFunc func(row int, kind ViolationKind, column, expected, actual string)

// columnChecker validates one declared column against its source array and
// copies accepted values into the valid output. Checkers scan their whole
// column at once; cross-column work only happens afterwards when rows are
// partitioned.
type columnChecker interface {
	check(fail failFunc)
	append(b array.Builder, row int) error
}

// compileChecker binds a declared column to the batch array carrying it.
// A physically incompatible array is uniform for every row, so it is
// reported as a batch-level mismatch rather than per-row noise.
func compileChecker(spec schema.ColumnSpec, arr arrow.Array) (columnChecker, error) {
	switch spec.Type.Kind {
	case schema.KindString:
		if _, ok := arr.(*array.String); ok {
			return &copyChecker{spec: spec, arr: arr}, nil
		}
	case schema.KindInt64:
		if _, ok := arr.(*array.Int64); ok {
			return &copyChecker{spec: spec, arr: arr}, nil
		}
	case schema.KindFloat64:
		if _, ok := arr.(*array.Float64); ok {
			return &copyChecker{spec: spec, arr: arr}, nil
		}
	case schema.KindBoolean:
		if _, ok := arr.(*array.Boolean); ok {
			return &copyChecker{spec: spec, arr: arr}, nil
		}
	case schema.KindDate:
		if _, ok := arr.(*array.Date32); ok {
			return &copyChecker{spec: spec, arr: arr}, nil
		}
	case schema.KindBinary:
		if _, ok := arr.(*array.Binary); ok {
			return &copyChecker{spec: spec, arr: arr}, nil
		}
	case schema.KindDecimal:
		if src, ok := arr.(*array.Decimal128); ok {
			return &decimalChecker{spec: spec, src: src}, nil
		}
		if src, ok := arr.(*array.String); ok {
			return &stringDecimalChecker{spec: spec, src: src}, nil
		}
	case schema.KindTimestamp, schema.KindTimestampTz:
		if src, ok := arr.(*array.Timestamp); ok {
			return &timestampChecker{spec: spec, src: src}, nil
		}
		if src, ok := arr.(*array.String); ok {
			return &stringTimestampChecker{spec: spec, src: src}, nil
		}
	case schema.KindList, schema.KindStruct:
		declared, err := spec.Type.ArrowType()
		if err != nil {
			return nil, err
		}
		if arrow.TypeEqual(declared, arr.DataType()) {
			return &copyChecker{spec: spec, arr: arr}, nil
		}
	}
	return nil, fmt.Errorf("column %q: declared %s, batch carries %s", spec.Name, spec.Type, arr.DataType())
}

// backfillChecker stands in for a tolerated missing nullable column: no
// checks, null for every accepted row.
type backfillChecker struct{}

func (c *backfillChecker) check(failFunc) {}

func (c *backfillChecker) append(b array.Builder, _ int) error {
	b.AppendNull()
	return nil
}

// copyChecker handles columns whose physical type already matches the
// declaration exactly. Scalar columns only need the null rule; nested
// list/struct columns are walked recursively so a violation at any depth
// quarantines the containing row.
type copyChecker struct {
	spec schema.ColumnSpec
	arr  arrow.Array
}

func (c *copyChecker) check(fail failFunc) {
	nested := c.spec.Type.Kind == schema.KindList || c.spec.Type.Kind == schema.KindStruct
	for i := 0; i < c.arr.Len(); i++ {
		if c.arr.IsNull(i) {
			if !c.spec.Nullable {
				fail(i, KindNullNotAllowed, c.spec.Name, c.spec.Type.String()+" not null", "null")
			}
			continue
		}
		if nested {
			checkNested(c.spec.Name, c.spec.Type, c.arr, i, i, fail)
		}
	}
}

func (c *copyChecker) append(b array.Builder, row int) error {
	return appendValue(b, c.arr, row)
}

// checkNested walks a value at the given depth. row is the top-level row
// that any violation is charged to; idx is the position within arr, which
// differs from row once inside list children.
func checkNested(path string, dt schema.DataType, arr arrow.Array, idx, row int, fail failFunc) {
	switch dt.Kind {
	case schema.KindDecimal:
		src := arr.(*array.Decimal128)
		n := src.Value(idx)
		if !n.FitsInPrecision(dt.Precision) {
			fail(row, KindPrecisionExceeded, path, dt.String(), n.ToString(dt.Scale))
		}
	case schema.KindList:
		src := arr.(*array.List)
		start, end := src.ValueOffsets(idx)
		values := src.ListValues()
		for j := start; j < end; j++ {
			if values.IsNull(int(j)) {
				continue
			}
			checkNested(path, *dt.Item, values, int(j), row, fail)
		}
	case schema.KindStruct:
		src := arr.(*array.Struct)
		for f, field := range dt.Fields {
			child := src.Field(f)
			fieldPath := path + "." + field.Name
			if child.IsNull(idx) {
				if !field.Nullable {
					fail(row, KindNullNotAllowed, fieldPath, field.Type.String()+" not null", "null")
				}
				continue
			}
			checkNested(fieldPath, field.Type, child, idx, row, fail)
		}
	}
}

// appendValue copies one value from a source array to a builder of the
// same physical type, recursing through lists and structs.
func appendValue(b array.Builder, arr arrow.Array, i int) error {
	if arr.IsNull(i) {
		b.AppendNull()
		return nil
	}
	switch bb := b.(type) {
	case *array.StringBuilder:
		bb.Append(arr.(*array.String).Value(i))
	case *array.Int64Builder:
		bb.Append(arr.(*array.Int64).Value(i))
	case *array.Float64Builder:
		bb.Append(arr.(*array.Float64).Value(i))
	case *array.BooleanBuilder:
		bb.Append(arr.(*array.Boolean).Value(i))
	case *array.Date32Builder:
		bb.Append(arr.(*array.Date32).Value(i))
	case *array.BinaryBuilder:
		bb.Append(arr.(*array.Binary).Value(i))
	case *array.Decimal128Builder:
		bb.Append(arr.(*array.Decimal128).Value(i))
	case *array.TimestampBuilder:
		bb.Append(arr.(*array.Timestamp).Value(i))
	case *array.ListBuilder:
		src := arr.(*array.List)
		bb.Append(true)
		start, end := src.ValueOffsets(i)
		values := src.ListValues()
		for j := start; j < end; j++ {
			if err := appendValue(bb.ValueBuilder(), values, int(j)); err != nil {
				return err
			}
		}
	case *array.StructBuilder:
		src := arr.(*array.Struct)
		bb.Append(true)
		for f := 0; f < bb.NumField(); f++ {
			if err := appendValue(bb.FieldBuilder(f), src.Field(f), i); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

// decimalChecker validates a decimal column against the declared
// precision/scale. The batch may carry a wider or differently scaled
// decimal128; values are rescaled to the declared scale and must fit the
// declared precision.
type decimalChecker struct {
	spec schema.ColumnSpec
	src  *array.Decimal128
	conv []decimal128.Num
}

func (c *decimalChecker) check(fail failFunc) {
	srcType := c.src.DataType().(*arrow.Decimal128Type)
	c.conv = make([]decimal128.Num, c.src.Len())
	for i := 0; i < c.src.Len(); i++ {
		if c.src.IsNull(i) {
			if !c.spec.Nullable {
				fail(i, KindNullNotAllowed, c.spec.Name, c.spec.Type.String()+" not null", "null")
			}
			continue
		}
		n := c.src.Value(i)
		if srcType.Scale != c.spec.Type.Scale {
			rescaled, err := n.Rescale(srcType.Scale, c.spec.Type.Scale)
			if err != nil {
				fail(i, KindPrecisionExceeded, c.spec.Name, c.spec.Type.String(), n.ToString(srcType.Scale))
				continue
			}
			n = rescaled
		}
		if !n.FitsInPrecision(c.spec.Type.Precision) {
			fail(i, KindPrecisionExceeded, c.spec.Name, c.spec.Type.String(), n.ToString(c.spec.Type.Scale))
			continue
		}
		c.conv[i] = n
	}
}

func (c *decimalChecker) append(b array.Builder, row int) error {
	if c.src.IsNull(row) {
		b.AppendNull()
		return nil
	}
	b.(*array.Decimal128Builder).Append(c.conv[row])
	return nil
}

// stringDecimalChecker validates textual decimal values against the
// declared precision/scale.
type stringDecimalChecker struct {
	spec schema.ColumnSpec
	src  *array.String
	conv []decimal128.Num
}

func (c *stringDecimalChecker) check(fail failFunc) {
	c.conv = make([]decimal128.Num, c.src.Len())
	for i := 0; i < c.src.Len(); i++ {
		if c.src.IsNull(i) {
			if !c.spec.Nullable {
				fail(i, KindNullNotAllowed, c.spec.Name, c.spec.Type.String()+" not null", "null")
			}
			continue
		}
		v := c.src.Value(i)
		n, err := decimal128.FromString(v, c.spec.Type.Precision, c.spec.Type.Scale)
		if err != nil {
			if _, ferr := strconv.ParseFloat(v, 64); ferr != nil {
				fail(i, KindTypeMismatch, c.spec.Name, c.spec.Type.String(), v)
			} else {
				fail(i, KindPrecisionExceeded, c.spec.Name, c.spec.Type.String(), v)
			}
			continue
		}
		if !n.FitsInPrecision(c.spec.Type.Precision) {
			fail(i, KindPrecisionExceeded, c.spec.Name, c.spec.Type.String(), v)
			continue
		}
		c.conv[i] = n
	}
}

func (c *stringDecimalChecker) append(b array.Builder, row int) error {
	if c.src.IsNull(row) {
		b.AppendNull()
		return nil
	}
	b.(*array.Decimal128Builder).Append(c.conv[row])
	return nil
}

// timestampChecker validates an Arrow timestamp column. Offset presence is
// column metadata for physical timestamps: a column stamped with a zone
// carries instants and satisfies a timestamp_tz declaration; a naive
// column against timestamp_tz fails every row, since the engine never
// assumes UTC. Units are normalized to microseconds.
type timestampChecker struct {
	spec schema.ColumnSpec
	src  *array.Timestamp
	conv []arrow.Timestamp
}

func (c *timestampChecker) check(fail failFunc) {
	srcType := c.src.DataType().(*arrow.TimestampType)
	needOffset := c.spec.Type.Kind == schema.KindTimestampTz
	naive := srcType.TimeZone == ""

	c.conv = make([]arrow.Timestamp, c.src.Len())
	for i := 0; i < c.src.Len(); i++ {
		if c.src.IsNull(i) {
			if !c.spec.Nullable {
				fail(i, KindNullNotAllowed, c.spec.Name, c.spec.Type.String()+" not null", "null")
			}
			continue
		}
		if needOffset && naive {
			fail(i, KindTimezoneRequired, c.spec.Name, c.spec.Type.String(), "timestamp without offset")
			continue
		}
		c.conv[i] = toMicroseconds(c.src.Value(i), srcType.Unit)
	}
}

func (c *timestampChecker) append(b array.Builder, row int) error {
	if c.src.IsNull(row) {
		b.AppendNull()
		return nil
	}
	b.(*array.TimestampBuilder).Append(c.conv[row])
	return nil
}

func toMicroseconds(ts arrow.Timestamp, unit arrow.TimeUnit) arrow.Timestamp {
	switch unit {
	case arrow.Second:
		return ts * 1_000_000
	case arrow.Millisecond:
		return ts * 1_000
	case arrow.Nanosecond:
		return ts / 1_000
	default:
		return ts
	}
}

// stringTimestampChecker validates textual timestamps. Offset presence is
// a per-value property here: a timestamp_tz declaration requires every
// value to carry an explicit offset; a naive declaration strips any offset
// present and keeps the wall-clock time.
type stringTimestampChecker struct {
	spec schema.ColumnSpec
	src  *array.String
	conv []arrow.Timestamp
}

func (c *stringTimestampChecker) check(fail failFunc) {
	needOffset := c.spec.Type.Kind == schema.KindTimestampTz
	c.conv = make([]arrow.Timestamp, c.src.Len())
	for i := 0; i < c.src.Len(); i++ {
		if c.src.IsNull(i) {
			if !c.spec.Nullable {
				fail(i, KindNullNotAllowed, c.spec.Name, c.spec.Type.String()+" not null", "null")
			}
			continue
		}
		v := c.src.Value(i)
		t, hasOffset, err := schema.ParseTimestamp(v)
		if err != nil {
			fail(i, KindTypeMismatch, c.spec.Name, c.spec.Type.String(), v)
			continue
		}
		if needOffset {
			if !hasOffset {
				fail(i, KindTimezoneRequired, c.spec.Name, c.spec.Type.String(), v)
				continue
			}
			c.conv[i] = arrow.Timestamp(t.UnixMicro())
			continue
		}
		// Naive declaration: keep the wall-clock reading, drop the offset.
		wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		c.conv[i] = arrow.Timestamp(wall.UnixMicro())
	}
}

func (c *stringTimestampChecker) append(b array.Builder, row int) error {
	if c.src.IsNull(row) {
		b.AppendNull()
		return nil
	}
	b.(*array.TimestampBuilder).Append(c.conv[row])
	return nil
}
