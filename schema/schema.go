// Package schema defines the typed column model that contracts are declared
// in: the DataType union, column specs, locked schemas, and approved
// contracts, along with the Arrow mapping used on the validation hot path.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mode controls how the validator treats columns present in a batch but not
// in the schema, and vice versa.
type Mode string

const (
	// ModeStrict requires the batch column set to match the schema exactly.
	ModeStrict Mode = "strict"
	// ModeAllowExtra drops batch columns the schema does not declare.
	ModeAllowExtra Mode = "allow_extra"
	// ModeAllowMissingOptional backfills missing nullable columns as null.
	ModeAllowMissingOptional Mode = "allow_missing_optional"
)

// ColumnSpec describes one column of a locked schema.
type ColumnSpec struct {
	Name        string
	Type        DataType
	Nullable    bool
	Format      string
	Description string
}

// Validate checks the column spec and its type.
func (c ColumnSpec) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("column requires a name")
	}
	if err := c.Type.Validate(); err != nil {
		return fmt.Errorf("column %q: %w", c.Name, err)
	}
	return nil
}

// LockedSchema is one approved output schema of a contract: an ordered
// column list plus the shape mode, identified by a content hash that is
// insensitive to descriptions and formats.
type LockedSchema struct {
	SchemaID    string       `json:"schema_id"`
	Name        string       `json:"name"`
	Columns     []ColumnSpec `json:"columns"`
	Mode        Mode         `json:"mode"`
	ContentHash string       `json:"content_hash"`
}

// Validate checks the schema, its mode, and every column.
func (s LockedSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema requires a name")
	}
	switch s.Mode {
	case ModeStrict, ModeAllowExtra, ModeAllowMissingOptional:
	default:
		return fmt.Errorf("schema %q: unknown mode %q", s.Name, s.Mode)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %q requires at least one column", s.Name)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Name] {
			return fmt.Errorf("schema %q: duplicate column %q", s.Name, c.Name)
		}
		seen[c.Name] = true
		if err := c.Validate(); err != nil {
			return fmt.Errorf("schema %q: %w", s.Name, err)
		}
	}
	return nil
}

// Column returns the descriptor for the named column.
func (s LockedSchema) Column(name string) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// ComputeContentHash hashes the behaviorally relevant parts of the schema:
// mode, column order, names, types, and nullability. Descriptions and
// formats are cosmetic and excluded, so editing them does not change the
// schema identity.
func (s LockedSchema) ComputeContentHash() string {
	var b strings.Builder
	b.WriteString(string(s.Mode))
	for _, c := range s.Columns {
		b.WriteString("|")
		b.WriteString(c.Name)
		b.WriteString(":")
		b.WriteString(c.Type.String())
		b.WriteString(":")
		b.WriteString(strconv.FormatBool(c.Nullable))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Lock fills in the content hash and returns the sealed schema.
func (s LockedSchema) Lock() LockedSchema {
	s.ContentHash = s.ComputeContentHash()
	return s
}

// SchemaContract is an immutable, versioned approval of one or more locked
// schemas for a scope. Amending a contract creates a new version; existing
// versions are never mutated or deleted.
type SchemaContract struct {
	ContractID string         `json:"contract_id"`
	ScopeID    string         `json:"scope_id"`
	ApprovedAt time.Time      `json:"approved_at"`
	ApprovedBy string         `json:"approved_by"`
	Version    int            `json:"version"`
	Schemas    []LockedSchema `json:"schemas"`
}

// Schema returns the locked schema with the given output name.
func (c *SchemaContract) Schema(name string) (LockedSchema, bool) {
	for _, s := range c.Schemas {
		if s.Name == name {
			return s, true
		}
	}
	return LockedSchema{}, false
}

// Validate checks the contract and every schema it carries.
func (c *SchemaContract) Validate() error {
	if c.ScopeID == "" {
		return fmt.Errorf("contract requires a scope id")
	}
	if c.Version < 1 {
		return fmt.Errorf("contract version must be >= 1, got %d", c.Version)
	}
	if len(c.Schemas) == 0 {
		return fmt.Errorf("contract requires at least one schema")
	}
	for _, s := range c.Schemas {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
