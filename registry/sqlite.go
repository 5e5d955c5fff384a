package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sl224/casparianflow-sub002/schema"
)

const createContractsTableSQL = `
CREATE TABLE IF NOT EXISTS contracts (
	contract_id TEXT NOT NULL,
	scope_id    TEXT NOT NULL,
	version     INTEGER NOT NULL,
	approved_at TEXT NOT NULL,
	approved_by TEXT NOT NULL,
	schemas     TEXT NOT NULL,
	PRIMARY KEY (scope_id, version)
);`

// SQLiteStore persists contracts in a local SQLite database. Rows are only
// ever inserted; the primary key enforces one contract per
// (scope_id, version).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the contract database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contract database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping contract database: %w", err)
	}
	if _, err := db.Exec(createContractsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create contracts table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Insert writes the contract. A duplicate (scope_id, version) surfaces as
// *VersionExistsError.
func (s *SQLiteStore) Insert(ctx context.Context, contract *schema.SchemaContract) error {
	payload, err := json.Marshal(contract.Schemas)
	if err != nil {
		return fmt.Errorf("failed to serialize schemas: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contracts (contract_id, scope_id, version, approved_at, approved_by, schemas)
		VALUES (?, ?, ?, ?, ?, ?)`,
		contract.ContractID,
		contract.ScopeID,
		contract.Version,
		contract.ApprovedAt.UTC().Format(time.RFC3339Nano),
		contract.ApprovedBy,
		string(payload),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return &VersionExistsError{ScopeID: contract.ScopeID, Version: contract.Version}
		}
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

// LoadAll reads every contract version ever approved.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*schema.SchemaContract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT contract_id, scope_id, version, approved_at, approved_by, schemas
		FROM contracts
		ORDER BY scope_id, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*schema.SchemaContract
	for rows.Next() {
		var (
			c          schema.SchemaContract
			approvedAt string
			payload    string
		)
		if err := rows.Scan(&c.ContractID, &c.ScopeID, &c.Version, &approvedAt, &c.ApprovedBy, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan contract row: %w", err)
		}
		c.ApprovedAt, err = time.Parse(time.RFC3339Nano, approvedAt)
		if err != nil {
			return nil, fmt.Errorf("contract %s has a bad approved_at: %w", c.ContractID, err)
		}
		if err := json.Unmarshal([]byte(payload), &c.Schemas); err != nil {
			return nil, fmt.Errorf("contract %s has bad schema payload: %w", c.ContractID, err)
		}
		contracts = append(contracts, &c)
	}
	return contracts, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
