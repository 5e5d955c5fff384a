package schema

import (
	"fmt"
	"strings"
)

// MaxDecimalPrecision is the largest precision a decimal column may declare.
const MaxDecimalPrecision = 38

// Kind identifies one arm of the DataType union.
type Kind string

const (
	KindString      Kind = "string"
	KindInt64       Kind = "int64"
	KindFloat64     Kind = "float64"
	KindBoolean     Kind = "boolean"
	KindDate        Kind = "date"
	KindBinary      Kind = "binary"
	KindDecimal     Kind = "decimal"
	KindTimestampTz Kind = "timestamp_tz"
	KindTimestamp   Kind = "timestamp"
	KindList        Kind = "list"
	KindStruct      Kind = "struct"
)

// DataType is the column type union. Only the fields relevant to Kind are
// set: Precision/Scale for decimal, TimeZone for timestamp_tz, Item for
// list, Fields for struct.
type DataType struct {
	Kind      Kind
	Precision int32
	Scale     int32
	TimeZone  string
	Item      *DataType
	Fields    []ColumnSpec
}

// Scalar constructors for the parameterless kinds.
func String() DataType  { return DataType{Kind: KindString} }
func Int64() DataType   { return DataType{Kind: KindInt64} }
func Float64() DataType { return DataType{Kind: KindFloat64} }
func Boolean() DataType { return DataType{Kind: KindBoolean} }
func Date() DataType    { return DataType{Kind: KindDate} }
func Binary() DataType  { return DataType{Kind: KindBinary} }

// Timestamp returns a naive (offset-free) timestamp type.
func Timestamp() DataType { return DataType{Kind: KindTimestamp} }

// TimestampTz returns a timestamp type that requires an explicit offset on
// every value.
func TimestampTz(tz string) DataType {
	return DataType{Kind: KindTimestampTz, TimeZone: tz}
}

// Decimal returns a fixed-point decimal type.
func Decimal(precision, scale int32) DataType {
	return DataType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// List returns a list type with the given item type.
func List(item DataType) DataType {
	return DataType{Kind: KindList, Item: &item}
}

// Struct returns a struct type with the given ordered fields.
func Struct(fields ...ColumnSpec) DataType {
	return DataType{Kind: KindStruct, Fields: fields}
}

// Validate checks the type parameters, recursing into list items and struct
// fields.
func (dt DataType) Validate() error {
	switch dt.Kind {
	case KindString, KindInt64, KindFloat64, KindBoolean, KindDate, KindBinary, KindTimestamp:
		return nil
	case KindTimestampTz:
		if dt.TimeZone == "" {
			return fmt.Errorf("timestamp_tz requires a timezone")
		}
		return nil
	case KindDecimal:
		if dt.Precision < 1 || dt.Precision > MaxDecimalPrecision {
			return fmt.Errorf("decimal precision %d out of range [1, %d]", dt.Precision, MaxDecimalPrecision)
		}
		if dt.Scale < 0 || dt.Scale > dt.Precision {
			return fmt.Errorf("decimal scale %d out of range [0, %d]", dt.Scale, dt.Precision)
		}
		return nil
	case KindList:
		if dt.Item == nil {
			return fmt.Errorf("list requires an item type")
		}
		if err := dt.Item.Validate(); err != nil {
			return fmt.Errorf("list item: %w", err)
		}
		return nil
	case KindStruct:
		if len(dt.Fields) == 0 {
			return fmt.Errorf("struct requires at least one field")
		}
		seen := make(map[string]bool, len(dt.Fields))
		for _, f := range dt.Fields {
			if f.Name == "" {
				return fmt.Errorf("struct field requires a name")
			}
			if seen[f.Name] {
				return fmt.Errorf("duplicate struct field %q", f.Name)
			}
			seen[f.Name] = true
			if err := f.Type.Validate(); err != nil {
				return fmt.Errorf("struct field %q: %w", f.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown type kind %q", dt.Kind)
	}
}

// Equal reports whether two types are identical, including parameters and
// nested items/fields. Field descriptions and formats do not participate.
func (dt DataType) Equal(other DataType) bool {
	if dt.Kind != other.Kind {
		return false
	}
	switch dt.Kind {
	case KindDecimal:
		return dt.Precision == other.Precision && dt.Scale == other.Scale
	case KindTimestampTz:
		return dt.TimeZone == other.TimeZone
	case KindList:
		if dt.Item == nil || other.Item == nil {
			return dt.Item == other.Item
		}
		return dt.Item.Equal(*other.Item)
	case KindStruct:
		if len(dt.Fields) != len(other.Fields) {
			return false
		}
		for i := range dt.Fields {
			if dt.Fields[i].Name != other.Fields[i].Name {
				return false
			}
			if dt.Fields[i].Nullable != other.Fields[i].Nullable {
				return false
			}
			if !dt.Fields[i].Type.Equal(other.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the type in the form used by diagnostics and content
// hashing: decimal(18,8), timestamp_tz(UTC), list<int64>,
// struct<a:int64, b:string>.
func (dt DataType) String() string {
	switch dt.Kind {
	case KindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", dt.Precision, dt.Scale)
	case KindTimestampTz:
		return fmt.Sprintf("timestamp_tz(%s)", dt.TimeZone)
	case KindList:
		if dt.Item == nil {
			return "list<?>"
		}
		return fmt.Sprintf("list<%s>", dt.Item.String())
	case KindStruct:
		parts := make([]string, 0, len(dt.Fields))
		for _, f := range dt.Fields {
			part := fmt.Sprintf("%s:%s", f.Name, f.Type.String())
			if f.Nullable {
				part += "?"
			}
			parts = append(parts, part)
		}
		return fmt.Sprintf("struct<%s>", strings.Join(parts, ", "))
	default:
		return string(dt.Kind)
	}
}
