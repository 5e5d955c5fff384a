package schema

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
)

// ArrowType maps a DataType to its Arrow physical type. Decimals map to
// decimal128 (precision <= 38), timestamps to microsecond resolution.
func (dt DataType) ArrowType() (arrow.DataType, error) {
	switch dt.Kind {
	case KindString:
		return arrow.BinaryTypes.String, nil
	case KindInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case KindBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case KindDate:
		return arrow.FixedWidthTypes.Date32, nil
	case KindBinary:
		return arrow.BinaryTypes.Binary, nil
	case KindDecimal:
		return &arrow.Decimal128Type{Precision: dt.Precision, Scale: dt.Scale}, nil
	case KindTimestampTz:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: dt.TimeZone}, nil
	case KindTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond}, nil
	case KindList:
		if dt.Item == nil {
			return nil, fmt.Errorf("list requires an item type")
		}
		item, err := dt.Item.ArrowType()
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(item), nil
	case KindStruct:
		fields := make([]arrow.Field, 0, len(dt.Fields))
		for _, f := range dt.Fields {
			at, err := f.Type.ArrowType()
			if err != nil {
				return nil, fmt.Errorf("struct field %q: %w", f.Name, err)
			}
			fields = append(fields, arrow.Field{Name: f.Name, Type: at, Nullable: f.Nullable})
		}
		return arrow.StructOf(fields...), nil
	default:
		return nil, fmt.Errorf("unknown type kind %q", dt.Kind)
	}
}

// ArrowField maps a column spec to an Arrow field.
func (c ColumnSpec) ArrowField() (arrow.Field, error) {
	at, err := c.Type.ArrowType()
	if err != nil {
		return arrow.Field{}, err
	}
	return arrow.Field{Name: c.Name, Type: at, Nullable: c.Nullable}, nil
}

// ArrowSchema maps the locked schema to an Arrow schema in column order.
func (s LockedSchema) ArrowSchema() (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(s.Columns))
	for _, c := range s.Columns {
		f, err := c.ArrowField()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return arrow.NewSchema(fields, nil), nil
}

// DataTypeFromArrow maps an Arrow physical type back to the declared type
// model, used when observing sampled batches.
func DataTypeFromArrow(at arrow.DataType) (DataType, error) {
	switch t := at.(type) {
	case *arrow.StringType:
		return String(), nil
	case *arrow.Int64Type:
		return Int64(), nil
	case *arrow.Float64Type:
		return Float64(), nil
	case *arrow.BooleanType:
		return Boolean(), nil
	case *arrow.Date32Type:
		return Date(), nil
	case *arrow.BinaryType:
		return Binary(), nil
	case *arrow.Decimal128Type:
		return Decimal(t.Precision, t.Scale), nil
	case *arrow.TimestampType:
		if t.TimeZone != "" {
			return TimestampTz(t.TimeZone), nil
		}
		return Timestamp(), nil
	case *arrow.ListType:
		item, err := DataTypeFromArrow(t.Elem())
		if err != nil {
			return DataType{}, fmt.Errorf("list item: %w", err)
		}
		return List(item), nil
	case *arrow.StructType:
		fields := make([]ColumnSpec, 0, t.NumFields())
		for i := 0; i < t.NumFields(); i++ {
			f := t.Field(i)
			ft, err := DataTypeFromArrow(f.Type)
			if err != nil {
				return DataType{}, fmt.Errorf("struct field %q: %w", f.Name, err)
			}
			fields = append(fields, ColumnSpec{Name: f.Name, Type: ft, Nullable: f.Nullable})
		}
		return Struct(fields...), nil
	default:
		return DataType{}, fmt.Errorf("unsupported arrow type %s", at)
	}
}
