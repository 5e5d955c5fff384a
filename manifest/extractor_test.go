package manifest

import (
	"errors"
	"strings"
	"testing"

	"github.com/sl224/casparianflow-sub002/schema"
)

const declaredSource = `package txparser

var ParserName = "tx-parser"
var ParserVersion = "1.2.0"
var Topics = []string{"transfers", "mints"}

var OutputSchemas = map[string]any{
	"transfers": map[string]any{
		"mode": "strict",
		"columns": []any{
			map[string]any{"name": "id", "type": "int64", "nullable": false},
			map[string]any{"name": "price", "type": "decimal(18,8)", "nullable": false},
			map[string]any{"name": "memo", "type": "string", "nullable": true},
		},
	},
}
`

func TestExtractDeclaredManifest(t *testing.T) {
	decl, warnings, err := Extract(declaredSource)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if decl == nil {
		t.Fatal("expected a declaration")
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	if decl.ParserName != "tx-parser" || decl.ParserVersion != "1.2.0" {
		t.Errorf("metadata = %q %q", decl.ParserName, decl.ParserVersion)
	}
	if len(decl.Topics) != 2 || decl.Topics[0] != "transfers" {
		t.Errorf("topics = %v", decl.Topics)
	}

	out, ok := decl.Output("transfers")
	if !ok {
		t.Fatal("transfers output missing")
	}
	if out.Mode != schema.ModeStrict {
		t.Errorf("mode = %q", out.Mode)
	}
	if len(out.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(out.Columns))
	}
	// Declaration order must survive extraction.
	wantOrder := []string{"id", "price", "memo"}
	for i, name := range wantOrder {
		if out.Columns[i].Name != name {
			t.Errorf("column %d = %q, want %q", i, out.Columns[i].Name, name)
		}
	}
	if !out.Columns[1].Type.Equal(schema.Decimal(18, 8)) {
		t.Errorf("price type = %s", out.Columns[1].Type)
	}
	if !out.Columns[2].Nullable {
		t.Error("memo should be nullable")
	}
}

func TestExtractLockedSchemas(t *testing.T) {
	decl, _, err := Extract(declaredSource)
	if err != nil {
		t.Fatal(err)
	}
	schemas, err := decl.LockedSchemas()
	if err != nil {
		t.Fatalf("LockedSchemas: %v", err)
	}
	if len(schemas) != 1 {
		t.Fatalf("expected 1 schema, got %d", len(schemas))
	}
	if schemas[0].ContentHash == "" {
		t.Error("locked schema should carry a content hash")
	}
}

func TestExtractNoDeclaration(t *testing.T) {
	decl, warnings, err := Extract(`package txparser

func Parse(input []byte) error { return nil }
`)
	if err != nil {
		t.Fatalf("absence of a declaration is not an error, got: %v", err)
	}
	if decl != nil {
		t.Error("expected nil declaration")
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestExtractMetadataWithoutSchemasWarns(t *testing.T) {
	decl, warnings, err := Extract(`package txparser

var ParserName = "tx-parser"
`)
	if err != nil {
		t.Fatal(err)
	}
	if decl != nil {
		t.Error("expected nil declaration")
	}
	if len(warnings) != 1 {
		t.Errorf("expected one warning, got %v", warnings)
	}
}

func TestExtractRejectsNonLiterals(t *testing.T) {
	tests := []struct {
		name   string
		source string
		reason string
	}{
		{
			"identifier reference",
			`package p
var defaultMode = "strict"
var OutputSchemas = map[string]any{"t": map[string]any{"mode": defaultMode, "columns": []any{}}}
`,
			"identifier",
		},
		{
			"function call",
			`package p
var OutputSchemas = map[string]any{"t": buildSchema()}
`,
			"not a literal",
		},
		{
			"arithmetic",
			`package p
var OutputSchemas = map[string]any{"t": map[string]any{"columns": []any{map[string]any{"name": "a", "type": "decimal(" + "18,8)"}}}}
`,
			"not a literal",
		},
		{
			"computed map key",
			`package p
var key = "t"
var OutputSchemas = map[string]any{key: map[string]any{}}
`,
			"string literals",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Extract(tt.source)
			if err == nil {
				t.Fatal("expected extraction to fail")
			}
			var ee *ExtractionError
			if !errors.As(err, &ee) {
				t.Fatalf("expected ExtractionError, got %T", err)
			}
			if !strings.Contains(ee.Reason, tt.reason) {
				t.Errorf("reason %q does not mention %q", ee.Reason, tt.reason)
			}
			if ee.Pos == "" {
				t.Error("diagnostic should carry a position")
			}
		})
	}
}

func TestExtractRejectsUnparsableSource(t *testing.T) {
	_, _, err := Extract("not go source")
	if err == nil {
		t.Fatal("expected an error")
	}
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %T", err)
	}
}

func TestExtractDuplicateDeclarationWarns(t *testing.T) {
	_, warnings, err := Extract(`package p

var ParserName = "one"
var ParserName2 = "unrelated"
var ParserName = "two"

var OutputSchemas = map[string]any{
	"t": map[string]any{
		"columns": []any{
			map[string]any{"name": "a", "type": "int64"},
		},
	},
}
`)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "more than once") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a duplicate-declaration warning, got %v", warnings)
	}
}
