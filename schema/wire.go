package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// typeWire is the {kind, parameters} wire form of a DataType used in
// manifests and in registry persistence.
type typeWire struct {
	Kind      string       `json:"kind"`
	Precision int32        `json:"precision,omitempty"`
	Scale     int32        `json:"scale,omitempty"`
	Tz        string       `json:"tz,omitempty"`
	Item      *typeWire    `json:"item,omitempty"`
	Fields    []columnWire `json:"fields,omitempty"`
}

type columnWire struct {
	Name        string   `json:"name"`
	Type        typeWire `json:"type"`
	Nullable    bool     `json:"nullable"`
	Format      string   `json:"format,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (dt DataType) wire() typeWire {
	w := typeWire{Kind: string(dt.Kind)}
	switch dt.Kind {
	case KindDecimal:
		w.Precision = dt.Precision
		w.Scale = dt.Scale
	case KindTimestampTz:
		w.Tz = dt.TimeZone
	case KindList:
		if dt.Item != nil {
			item := dt.Item.wire()
			w.Item = &item
		}
	case KindStruct:
		for _, f := range dt.Fields {
			w.Fields = append(w.Fields, f.wire())
		}
	}
	return w
}

func (c ColumnSpec) wire() columnWire {
	return columnWire{
		Name:        c.Name,
		Type:        c.Type.wire(),
		Nullable:    c.Nullable,
		Format:      c.Format,
		Description: c.Description,
	}
}

func (w typeWire) dataType() (DataType, error) {
	switch Kind(w.Kind) {
	case KindString, KindInt64, KindFloat64, KindBoolean, KindDate, KindBinary, KindTimestamp:
		return DataType{Kind: Kind(w.Kind)}, nil
	case KindDecimal:
		return Decimal(w.Precision, w.Scale), nil
	case KindTimestampTz:
		return TimestampTz(w.Tz), nil
	case KindList:
		if w.Item == nil {
			return DataType{}, fmt.Errorf("list requires an item type")
		}
		item, err := w.Item.dataType()
		if err != nil {
			return DataType{}, err
		}
		return List(item), nil
	case KindStruct:
		fields := make([]ColumnSpec, 0, len(w.Fields))
		for _, fw := range w.Fields {
			f, err := fw.columnSpec()
			if err != nil {
				return DataType{}, err
			}
			fields = append(fields, f)
		}
		return Struct(fields...), nil
	default:
		return DataType{}, fmt.Errorf("unknown type kind %q", w.Kind)
	}
}

func (w columnWire) columnSpec() (ColumnSpec, error) {
	dt, err := w.Type.dataType()
	if err != nil {
		return ColumnSpec{}, fmt.Errorf("column %q: %w", w.Name, err)
	}
	return ColumnSpec{
		Name:        w.Name,
		Type:        dt,
		Nullable:    w.Nullable,
		Format:      w.Format,
		Description: w.Description,
	}, nil
}

// MarshalJSON emits the {kind, parameters} wire form.
func (dt DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.wire())
}

// UnmarshalJSON parses the {kind, parameters} wire form.
func (dt *DataType) UnmarshalJSON(data []byte) error {
	var w typeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := w.dataType()
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// MarshalJSON emits the column wire form.
func (c ColumnSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire())
}

// UnmarshalJSON parses the column wire form.
func (c *ColumnSpec) UnmarshalJSON(data []byte) error {
	var w columnWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := w.columnSpec()
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TypeFromSpecValue decodes a type from the generic values a manifest
// extraction yields: either a string shorthand like "decimal(18,8)" or a
// mapping like {"kind": "decimal", "precision": 18, "scale": 8}.
func TypeFromSpecValue(v any) (DataType, error) {
	switch tv := v.(type) {
	case string:
		return ParseTypeString(tv)
	case map[string]any:
		kind, _ := tv["kind"].(string)
		if kind == "" {
			return DataType{}, fmt.Errorf("type mapping requires a kind")
		}
		w := typeWire{Kind: kind}
		if p, ok := specInt(tv["precision"]); ok {
			w.Precision = p
		}
		if s, ok := specInt(tv["scale"]); ok {
			w.Scale = s
		}
		if tz, ok := tv["tz"].(string); ok {
			w.Tz = tz
		}
		if Kind(kind) == KindList {
			item, ok := tv["item"]
			if !ok {
				return DataType{}, fmt.Errorf("list requires an item type")
			}
			it, err := TypeFromSpecValue(item)
			if err != nil {
				return DataType{}, err
			}
			return List(it), nil
		}
		if Kind(kind) == KindStruct {
			raw, ok := tv["fields"].([]any)
			if !ok {
				return DataType{}, fmt.Errorf("struct requires a fields list")
			}
			fields := make([]ColumnSpec, 0, len(raw))
			for _, rf := range raw {
				fm, ok := rf.(map[string]any)
				if !ok {
					return DataType{}, fmt.Errorf("struct field must be a mapping")
				}
				f, err := ColumnFromSpecValue(fm)
				if err != nil {
					return DataType{}, err
				}
				fields = append(fields, f)
			}
			return Struct(fields...), nil
		}
		return w.dataType()
	default:
		return DataType{}, fmt.Errorf("type must be a string or a mapping, got %T", v)
	}
}

// ColumnFromSpecValue decodes a column descriptor mapping with name, type,
// and nullable keys.
func ColumnFromSpecValue(m map[string]any) (ColumnSpec, error) {
	name, _ := m["name"].(string)
	if name == "" {
		return ColumnSpec{}, fmt.Errorf("column descriptor requires a name")
	}
	tv, ok := m["type"]
	if !ok {
		return ColumnSpec{}, fmt.Errorf("column %q requires a type", name)
	}
	dt, err := TypeFromSpecValue(tv)
	if err != nil {
		return ColumnSpec{}, fmt.Errorf("column %q: %w", name, err)
	}
	nullable, _ := m["nullable"].(bool)
	format, _ := m["format"].(string)
	desc, _ := m["description"].(string)
	return ColumnSpec{Name: name, Type: dt, Nullable: nullable, Format: format, Description: desc}, nil
}

func specInt(v any) (int32, bool) {
	switch n := v.(type) {
	case int64:
		return int32(n), true
	case int:
		return int32(n), true
	case float64:
		return int32(n), true
	default:
		return 0, false
	}
}

// ParseTypeString parses the shorthand type syntax: plain kinds, plus
// decimal(p,s), timestamp_tz(zone), list<item>, and
// struct<name:type, name:type?> where a trailing ? marks a nullable field.
func ParseTypeString(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return DataType{}, fmt.Errorf("empty type")
	case strings.HasPrefix(s, "decimal(") && strings.HasSuffix(s, ")"):
		args := s[len("decimal(") : len(s)-1]
		parts := strings.Split(args, ",")
		if len(parts) != 2 {
			return DataType{}, fmt.Errorf("decimal requires precision and scale, got %q", s)
		}
		p, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 32)
		if err != nil {
			return DataType{}, fmt.Errorf("decimal precision: %w", err)
		}
		sc, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 32)
		if err != nil {
			return DataType{}, fmt.Errorf("decimal scale: %w", err)
		}
		return Decimal(int32(p), int32(sc)), nil
	case strings.HasPrefix(s, "timestamp_tz(") && strings.HasSuffix(s, ")"):
		return TimestampTz(strings.TrimSpace(s[len("timestamp_tz(") : len(s)-1])), nil
	case strings.HasPrefix(s, "list<") && strings.HasSuffix(s, ">"):
		item, err := ParseTypeString(s[len("list<") : len(s)-1])
		if err != nil {
			return DataType{}, fmt.Errorf("list item: %w", err)
		}
		return List(item), nil
	case strings.HasPrefix(s, "struct<") && strings.HasSuffix(s, ">"):
		body := s[len("struct<") : len(s)-1]
		parts, err := splitTopLevel(body)
		if err != nil {
			return DataType{}, err
		}
		if len(parts) == 0 {
			return DataType{}, fmt.Errorf("struct requires at least one field")
		}
		fields := make([]ColumnSpec, 0, len(parts))
		for _, part := range parts {
			idx := strings.Index(part, ":")
			if idx <= 0 {
				return DataType{}, fmt.Errorf("struct field %q must be name:type", part)
			}
			name := strings.TrimSpace(part[:idx])
			typeStr := strings.TrimSpace(part[idx+1:])
			nullable := false
			if strings.HasSuffix(typeStr, "?") {
				nullable = true
				typeStr = strings.TrimSuffix(typeStr, "?")
			}
			ft, err := ParseTypeString(typeStr)
			if err != nil {
				return DataType{}, fmt.Errorf("struct field %q: %w", name, err)
			}
			fields = append(fields, ColumnSpec{Name: name, Type: ft, Nullable: nullable})
		}
		return Struct(fields...), nil
	default:
		dt := DataType{Kind: Kind(s)}
		switch dt.Kind {
		case KindString, KindInt64, KindFloat64, KindBoolean, KindDate, KindBinary, KindTimestamp:
			return dt, nil
		}
		return DataType{}, fmt.Errorf("unknown type %q", s)
	}
}

// splitTopLevel splits on commas that are not nested inside <>, (), or {}.
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '<', '(', '{':
			depth++
		case '>', ')', '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets in %q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets in %q", s)
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts, nil
}
