package schema

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
)

func TestArrowMappingRoundTrip(t *testing.T) {
	types := []DataType{
		String(), Int64(), Float64(), Boolean(), Date(), Binary(),
		Decimal(18, 8),
		TimestampTz("UTC"),
		Timestamp(),
		List(Decimal(10, 2)),
		Struct(
			ColumnSpec{Name: "amount", Type: Decimal(18, 8)},
			ColumnSpec{Name: "memo", Type: String(), Nullable: true},
		),
	}

	for _, dt := range types {
		at, err := dt.ArrowType()
		if err != nil {
			t.Fatalf("ArrowType(%s): %v", dt, err)
		}
		back, err := DataTypeFromArrow(at)
		if err != nil {
			t.Fatalf("DataTypeFromArrow(%s): %v", at, err)
		}
		if !back.Equal(dt) {
			t.Errorf("round trip of %s yielded %s", dt, back)
		}
	}
}

func TestArrowTimestampUnits(t *testing.T) {
	at, err := TimestampTz("UTC").ArrowType()
	if err != nil {
		t.Fatal(err)
	}
	ts, ok := at.(*arrow.TimestampType)
	if !ok {
		t.Fatalf("expected timestamp type, got %s", at)
	}
	if ts.Unit != arrow.Microsecond {
		t.Errorf("expected microsecond unit, got %s", ts.Unit)
	}
	if ts.TimeZone != "UTC" {
		t.Errorf("expected UTC zone, got %q", ts.TimeZone)
	}

	at, err = Timestamp().ArrowType()
	if err != nil {
		t.Fatal(err)
	}
	if tz := at.(*arrow.TimestampType).TimeZone; tz != "" {
		t.Errorf("naive timestamp should have no zone, got %q", tz)
	}
}

func TestArrowSchemaOrder(t *testing.T) {
	s := testSchema()
	as, err := s.ArrowSchema()
	if err != nil {
		t.Fatal(err)
	}
	if as.NumFields() != len(s.Columns) {
		t.Fatalf("expected %d fields, got %d", len(s.Columns), as.NumFields())
	}
	for i, c := range s.Columns {
		f := as.Field(i)
		if f.Name != c.Name {
			t.Errorf("field %d: expected %q, got %q", i, c.Name, f.Name)
		}
		if f.Nullable != c.Nullable {
			t.Errorf("field %q: nullable mismatch", f.Name)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input      string
		wantOffset bool
		wantErr    bool
	}{
		{"2024-03-01T12:00:00Z", true, false},
		{"2024-03-01T12:00:00+05:30", true, false},
		{"2024-03-01T12:00:00.123456Z", true, false},
		{"2024-03-01 12:00:00+00:00", true, false},
		{"2024-03-01T12:00:00", false, false},
		{"2024-03-01 12:00:00", false, false},
		{"2024-03-01 12:00:00.5", false, false},
		{"yesterday", false, true},
		{"", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, hasOffset, err := ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && hasOffset != tt.wantOffset {
				t.Errorf("hasOffset = %v, want %v", hasOffset, tt.wantOffset)
			}
		})
	}
}
