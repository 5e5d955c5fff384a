// Package manifest statically extracts the output schema a parser declares
// in its source. The source is never executed: extraction parses the syntax
// tree and evaluates only literal expressions, so an untrusted parser can
// declare its contract without being granted any execution.
package manifest

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/sl224/casparianflow-sub002/schema"
)

// Declared variable names a parser uses to publish its manifest.
const (
	VarParserName    = "ParserName"
	VarParserVersion = "ParserVersion"
	VarTopics        = "Topics"
	VarOutputSchemas = "OutputSchemas"
)

// Declaration is the statically extracted manifest of a parser.
type Declaration struct {
	ParserName    string
	ParserVersion string
	Topics        []string
	Outputs       []DeclaredOutput
}

// DeclaredOutput is one declared output schema, keyed by output name.
type DeclaredOutput struct {
	Name    string
	Mode    schema.Mode
	Columns []schema.ColumnSpec
}

// Output returns the declared output with the given name.
func (d *Declaration) Output(name string) (DeclaredOutput, bool) {
	for _, o := range d.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return DeclaredOutput{}, false
}

// LockedSchemas converts the declared outputs to locked schemas, validating
// each one.
func (d *Declaration) LockedSchemas() ([]schema.LockedSchema, error) {
	schemas := make([]schema.LockedSchema, 0, len(d.Outputs))
	for _, o := range d.Outputs {
		ls := schema.LockedSchema{
			Name:    o.Name,
			Columns: o.Columns,
			Mode:    o.Mode,
		}
		if err := ls.Validate(); err != nil {
			return nil, err
		}
		schemas = append(schemas, ls.Lock())
	}
	return schemas, nil
}

// ExtractionError reports why a declared manifest could not be extracted.
// It is non-fatal to the job: the caller falls back to inference mode.
type ExtractionError struct {
	Pos    string
	Reason string
}

func (e *ExtractionError) Error() string {
	if e.Pos == "" {
		return fmt.Sprintf("manifest extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("manifest extraction failed at %s: %s", e.Pos, e.Reason)
}

// Extract parses parser source and pulls out the declared manifest.
//
// Returns (nil, warnings, nil) when the source declares no output schema at
// all; returns an *ExtractionError when a declaration exists but contains
// anything other than literal data.
func Extract(source string) (*Declaration, []string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "parser.go", source, parser.SkipObjectResolution)
	if err != nil {
		return nil, nil, &ExtractionError{Reason: fmt.Sprintf("source does not parse: %v", err)}
	}

	values := make(map[string]any)
	var warnings []string

	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				switch name.Name {
				case VarParserName, VarParserVersion, VarTopics, VarOutputSchemas:
				default:
					continue
				}
				if i >= len(vs.Values) {
					return nil, warnings, &ExtractionError{
						Pos:    fset.Position(name.Pos()).String(),
						Reason: fmt.Sprintf("%s is declared without a value", name.Name),
					}
				}
				v, err := evalLiteral(fset, vs.Values[i])
				if err != nil {
					return nil, warnings, err
				}
				if _, dup := values[name.Name]; dup {
					warnings = append(warnings, fmt.Sprintf("%s declared more than once; using the last declaration", name.Name))
				}
				values[name.Name] = v
			}
		}
	}

	raw, ok := values[VarOutputSchemas]
	if !ok {
		if len(values) > 0 {
			warnings = append(warnings, "parser declares metadata but no output schemas")
		}
		return nil, warnings, nil
	}

	decl := &Declaration{}
	if s, ok := values[VarParserName].(string); ok {
		decl.ParserName = s
	} else {
		warnings = append(warnings, "parser does not declare ParserName")
	}
	if s, ok := values[VarParserVersion].(string); ok {
		decl.ParserVersion = s
	} else {
		warnings = append(warnings, "parser does not declare ParserVersion")
	}
	if topics, ok := values[VarTopics].([]any); ok {
		for _, t := range topics {
			s, ok := t.(string)
			if !ok {
				return nil, warnings, &ExtractionError{Reason: fmt.Sprintf("Topics must be strings, got %T", t)}
			}
			decl.Topics = append(decl.Topics, s)
		}
	}

	outputs, err := decodeOutputs(raw)
	if err != nil {
		return nil, warnings, err
	}
	decl.Outputs = outputs
	return decl, warnings, nil
}

func decodeOutputs(raw any) ([]DeclaredOutput, error) {
	byName, ok := raw.(*orderedMap)
	if !ok {
		return nil, &ExtractionError{Reason: fmt.Sprintf("OutputSchemas must be a mapping keyed by output name, got %T", raw)}
	}
	outputs := make([]DeclaredOutput, 0, len(byName.keys))
	for _, name := range byName.keys {
		body, ok := byName.values[name].(*orderedMap)
		if !ok {
			return nil, &ExtractionError{Reason: fmt.Sprintf("output %q must be a mapping", name)}
		}
		out := DeclaredOutput{Name: name, Mode: schema.ModeStrict}
		if m, ok := body.values["mode"]; ok {
			s, ok := m.(string)
			if !ok {
				return nil, &ExtractionError{Reason: fmt.Sprintf("output %q: mode must be a string", name)}
			}
			out.Mode = schema.Mode(s)
		}
		rawCols, ok := body.values["columns"]
		if !ok {
			return nil, &ExtractionError{Reason: fmt.Sprintf("output %q declares no columns", name)}
		}
		cols, ok := rawCols.([]any)
		if !ok {
			return nil, &ExtractionError{Reason: fmt.Sprintf("output %q: columns must be a list", name)}
		}
		for _, rc := range cols {
			cm, ok := rc.(*orderedMap)
			if !ok {
				return nil, &ExtractionError{Reason: fmt.Sprintf("output %q: column descriptor must be a mapping", name)}
			}
			col, err := schema.ColumnFromSpecValue(cm.plain())
			if err != nil {
				return nil, &ExtractionError{Reason: fmt.Sprintf("output %q: %v", name, err)}
			}
			out.Columns = append(out.Columns, col)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// orderedMap preserves declaration order for mappings, since schema column
// order is significant.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func (m *orderedMap) set(key string, v any) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// plain converts to the generic representation schema decoding expects,
// recursing through nested mappings.
func (m *orderedMap) plain() map[string]any {
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch tv := v.(type) {
	case *orderedMap:
		return tv.plain()
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}

// evalLiteral evaluates an expression if and only if it is literal data:
// basic literals, true/false/nil, signed numeric literals, and composite
// literals of slices and string-keyed maps. Any identifier reference,
// call, selector, or arithmetic fails extraction with a positioned
// diagnostic.
func evalLiteral(fset *token.FileSet, expr ast.Expr) (any, error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return evalBasicLit(fset, e)
	case *ast.Ident:
		switch e.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		return nil, &ExtractionError{
			Pos:    fset.Position(e.Pos()).String(),
			Reason: fmt.Sprintf("identifier %q is not a literal; declared schemas may not reference names", e.Name),
		}
	case *ast.UnaryExpr:
		if e.Op != token.SUB && e.Op != token.ADD {
			return nil, &ExtractionError{
				Pos:    fset.Position(e.Pos()).String(),
				Reason: fmt.Sprintf("operator %q is not allowed in a declared schema", e.Op),
			}
		}
		inner, err := evalLiteral(fset, e.X)
		if err != nil {
			return nil, err
		}
		if e.Op == token.ADD {
			return inner, nil
		}
		switch n := inner.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, &ExtractionError{
			Pos:    fset.Position(e.Pos()).String(),
			Reason: "negation is only allowed on numeric literals",
		}
	case *ast.CompositeLit:
		return evalCompositeLit(fset, e)
	case *ast.ParenExpr:
		return evalLiteral(fset, e.X)
	default:
		return nil, &ExtractionError{
			Pos:    fset.Position(expr.Pos()).String(),
			Reason: fmt.Sprintf("%T is not a literal expression; declared schemas are literal data only", expr),
		}
	}
}

func evalBasicLit(fset *token.FileSet, lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, &ExtractionError{Pos: fset.Position(lit.Pos()).String(), Reason: fmt.Sprintf("bad string literal: %v", err)}
		}
		return s, nil
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, &ExtractionError{Pos: fset.Position(lit.Pos()).String(), Reason: fmt.Sprintf("bad integer literal: %v", err)}
		}
		return n, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, &ExtractionError{Pos: fset.Position(lit.Pos()).String(), Reason: fmt.Sprintf("bad float literal: %v", err)}
		}
		return f, nil
	default:
		return nil, &ExtractionError{
			Pos:    fset.Position(lit.Pos()).String(),
			Reason: fmt.Sprintf("literal kind %s is not allowed in a declared schema", lit.Kind),
		}
	}
}

func evalCompositeLit(fset *token.FileSet, lit *ast.CompositeLit) (any, error) {
	switch lit.Type.(type) {
	case *ast.MapType:
		m := &orderedMap{values: make(map[string]any)}
		for _, elt := range lit.Elts {
			kv, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				return nil, &ExtractionError{
					Pos:    fset.Position(elt.Pos()).String(),
					Reason: "map literal elements must be key: value pairs",
				}
			}
			keyLit, ok := kv.Key.(*ast.BasicLit)
			if !ok || keyLit.Kind != token.STRING {
				return nil, &ExtractionError{
					Pos:    fset.Position(kv.Key.Pos()).String(),
					Reason: "map keys in a declared schema must be string literals",
				}
			}
			key, err := strconv.Unquote(keyLit.Value)
			if err != nil {
				return nil, &ExtractionError{Pos: fset.Position(keyLit.Pos()).String(), Reason: fmt.Sprintf("bad map key: %v", err)}
			}
			v, err := evalLiteral(fset, kv.Value)
			if err != nil {
				return nil, err
			}
			m.set(key, v)
		}
		return m, nil
	case *ast.ArrayType:
		out := make([]any, 0, len(lit.Elts))
		for _, elt := range lit.Elts {
			v, err := evalLiteral(fset, elt)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case nil:
		// Untyped composite literal nested inside a typed map/slice literal.
		// The enclosing type decides whether it is a map or a slice, but for
		// literal data the element shapes disambiguate: key/value pairs mean
		// a mapping, anything else a list.
		if len(lit.Elts) > 0 {
			if _, ok := lit.Elts[0].(*ast.KeyValueExpr); ok {
				clone := *lit
				clone.Type = &ast.MapType{Key: ast.NewIdent("string"), Value: ast.NewIdent("any")}
				return evalCompositeLit(fset, &clone)
			}
		}
		clone := *lit
		clone.Type = &ast.ArrayType{Elt: ast.NewIdent("any")}
		return evalCompositeLit(fset, &clone)
	default:
		return nil, &ExtractionError{
			Pos:    fset.Position(lit.Pos()).String(),
			Reason: fmt.Sprintf("composite literal type %T is not allowed in a declared schema", lit.Type),
		}
	}
}
