package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sl224/casparianflow-sub002/schema"
)

func openTestStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "contracts.db")

	store := openTestStore(t, path)
	contract := &schema.SchemaContract{
		ContractID: "c1",
		ScopeID:    "scope1",
		ApprovedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ApprovedBy: "alice",
		Version:    1,
		Schemas:    testSchemas(),
	}
	contract.Schemas[0] = contract.Schemas[0].Lock()

	if err := store.Insert(ctx, contract); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and read back.
	store = openTestStore(t, path)
	defer store.Close()

	contracts, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(contracts) != 1 {
		t.Fatalf("expected 1 contract, got %d", len(contracts))
	}
	got := contracts[0]
	if got.ContractID != "c1" || got.ScopeID != "scope1" || got.Version != 1 {
		t.Errorf("contract = %+v", got)
	}
	if !got.ApprovedAt.Equal(contract.ApprovedAt) {
		t.Errorf("approved_at = %v, want %v", got.ApprovedAt, contract.ApprovedAt)
	}
	if len(got.Schemas) != 1 || got.Schemas[0].Name != "transfers" {
		t.Fatalf("schemas = %+v", got.Schemas)
	}
	if got.Schemas[0].ContentHash != contract.Schemas[0].ContentHash {
		t.Error("content hash lost in persistence")
	}
	if !got.Schemas[0].Columns[1].Type.Equal(schema.Decimal(18, 8)) {
		t.Errorf("price type = %s", got.Schemas[0].Columns[1].Type)
	}
}

func TestSQLiteStoreRejectsDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "contracts.db"))
	defer store.Close()

	contract := &schema.SchemaContract{
		ContractID: "c1",
		ScopeID:    "scope1",
		ApprovedAt: time.Now().UTC(),
		ApprovedBy: "alice",
		Version:    1,
		Schemas:    testSchemas(),
	}
	if err := store.Insert(ctx, contract); err != nil {
		t.Fatal(err)
	}

	dup := *contract
	dup.ContractID = "c2"
	err := store.Insert(ctx, &dup)
	var vee *VersionExistsError
	if !errors.As(err, &vee) {
		t.Fatalf("expected VersionExistsError, got %v", err)
	}

	// A different version for the same scope is fine.
	next := *contract
	next.ContractID = "c3"
	next.Version = 2
	if err := store.Insert(ctx, &next); err != nil {
		t.Fatalf("version 2 insert: %v", err)
	}
}

func TestRegistryOverSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "contracts.db")

	store := openTestStore(t, path)
	r, err := Open(ctx, store, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	draft, _ := r.Propose("scope1", testSchemas())
	if _, err := r.Approve(ctx, draft, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	// Approval survives a restart.
	r2, err := Open(ctx, openTestStore(t, path), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	got, err := r2.Resolve("scope1")
	if err != nil {
		t.Fatalf("Resolve after restart: %v", err)
	}
	if got.Version != 1 || got.ApprovedBy != "alice" {
		t.Errorf("contract = %+v", got)
	}
}
