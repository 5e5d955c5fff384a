package schema

import (
	"encoding/json"
	"testing"
)

func testSchema() LockedSchema {
	return LockedSchema{
		Name: "transfers",
		Mode: ModeStrict,
		Columns: []ColumnSpec{
			{Name: "id", Type: Int64()},
			{Name: "price", Type: Decimal(18, 8)},
			{Name: "memo", Type: String(), Nullable: true},
		},
	}
}

func TestLockedSchemaValidate(t *testing.T) {
	s := testSchema()
	if err := s.Validate(); err != nil {
		t.Fatalf("valid schema rejected: %v", err)
	}

	bad := testSchema()
	bad.Mode = "lenient"
	if err := bad.Validate(); err == nil {
		t.Error("unknown mode should be rejected")
	}

	bad = testSchema()
	bad.Columns = append(bad.Columns, ColumnSpec{Name: "id", Type: String()})
	if err := bad.Validate(); err == nil {
		t.Error("duplicate column should be rejected")
	}

	bad = testSchema()
	bad.Columns = nil
	if err := bad.Validate(); err == nil {
		t.Error("empty column list should be rejected")
	}
}

func TestContentHashStability(t *testing.T) {
	a := testSchema()
	b := testSchema()
	if a.ComputeContentHash() != b.ComputeContentHash() {
		t.Fatal("identical schemas should hash identically")
	}

	// Descriptions and formats are cosmetic.
	b.Columns[1].Description = "price in quote currency"
	b.Columns[2].Format = "utf8"
	if a.ComputeContentHash() != b.ComputeContentHash() {
		t.Error("description/format edits should not change the content hash")
	}

	// Anything behavioral does change the hash.
	c := testSchema()
	c.Columns[1].Type = Decimal(18, 2)
	if a.ComputeContentHash() == c.ComputeContentHash() {
		t.Error("type change should change the content hash")
	}

	c = testSchema()
	c.Columns[2].Nullable = false
	if a.ComputeContentHash() == c.ComputeContentHash() {
		t.Error("nullability change should change the content hash")
	}

	c = testSchema()
	c.Mode = ModeAllowExtra
	if a.ComputeContentHash() == c.ComputeContentHash() {
		t.Error("mode change should change the content hash")
	}

	c = testSchema()
	c.Columns[0], c.Columns[1] = c.Columns[1], c.Columns[0]
	if a.ComputeContentHash() == c.ComputeContentHash() {
		t.Error("column reorder should change the content hash")
	}
}

func TestLock(t *testing.T) {
	s := testSchema().Lock()
	if s.ContentHash == "" {
		t.Fatal("Lock should fill the content hash")
	}
	if s.ContentHash != s.ComputeContentHash() {
		t.Error("locked hash should match recomputation")
	}
}

func TestSchemaContractValidate(t *testing.T) {
	c := &SchemaContract{
		ContractID: "c1",
		ScopeID:    "scope1",
		Version:    1,
		Schemas:    []LockedSchema{testSchema().Lock()},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("valid contract rejected: %v", err)
	}

	bad := *c
	bad.Version = 0
	if err := bad.Validate(); err == nil {
		t.Error("version 0 should be rejected")
	}

	bad = *c
	bad.ScopeID = ""
	if err := bad.Validate(); err == nil {
		t.Error("missing scope id should be rejected")
	}
}

func TestColumnSpecJSONRoundTrip(t *testing.T) {
	col := ColumnSpec{
		Name: "payload",
		Type: Struct(
			ColumnSpec{Name: "amount", Type: Decimal(18, 8)},
			ColumnSpec{Name: "tags", Type: List(String()), Nullable: true},
			ColumnSpec{Name: "at", Type: TimestampTz("UTC")},
		),
		Nullable:    true,
		Description: "event payload",
	}

	data, err := json.Marshal(col)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ColumnSpec
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != col.Name || got.Nullable != col.Nullable || got.Description != col.Description {
		t.Errorf("column metadata lost in round trip: %+v", got)
	}
	if !got.Type.Equal(col.Type) {
		t.Errorf("type lost in round trip: %s vs %s", got.Type, col.Type)
	}
}

func TestTypeFromSpecValue(t *testing.T) {
	// String shorthand.
	dt, err := TypeFromSpecValue("decimal(18,8)")
	if err != nil {
		t.Fatalf("shorthand: %v", err)
	}
	if !dt.Equal(Decimal(18, 8)) {
		t.Errorf("shorthand yielded %s", dt)
	}

	// Mapping form, as manifest extraction produces it.
	dt, err = TypeFromSpecValue(map[string]any{
		"kind": "list",
		"item": map[string]any{"kind": "decimal", "precision": int64(10), "scale": int64(2)},
	})
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	if !dt.Equal(List(Decimal(10, 2))) {
		t.Errorf("mapping yielded %s", dt)
	}

	if _, err := TypeFromSpecValue(42); err == nil {
		t.Error("non-string non-mapping value should be rejected")
	}
	if _, err := TypeFromSpecValue(map[string]any{}); err == nil {
		t.Error("mapping without kind should be rejected")
	}
}
