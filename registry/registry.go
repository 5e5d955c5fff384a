// Package registry stores approved schema contracts. Contracts are
// append-only: approving or amending writes a new (scope_id, version) row,
// prior versions stay readable for audit, and the current version for a
// scope is simply the highest approved one.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sl224/casparianflow-sub002/logging"
	"github.com/sl224/casparianflow-sub002/schema"
)

// ErrNoContract is returned by Resolve when no approved contract exists for
// a scope. Fatal in production mode; development mode may proceed without
// one.
var ErrNoContract = errors.New("no approved contract for scope")

// VersionExistsError is returned by Approve when the proposed version is
// already taken; the caller must bump the draft version.
type VersionExistsError struct {
	ScopeID string
	Version int
}

func (e *VersionExistsError) Error() string {
	return fmt.Sprintf("contract version %d already approved for scope %s", e.Version, e.ScopeID)
}

// Draft is a proposed contract awaiting human approval.
type Draft struct {
	DraftID   string
	ScopeID   string
	Version   int
	Schemas   []schema.LockedSchema
	CreatedAt time.Time
}

// Store persists contracts. Insert must reject a duplicate
// (scope_id, version) pair.
type Store interface {
	Insert(ctx context.Context, contract *schema.SchemaContract) error
	LoadAll(ctx context.Context) ([]*schema.SchemaContract, error)
	Close() error
}

// Registry resolves, proposes, approves, and amends contracts. Resolve is
// safe for unlimited concurrent readers; Approve and Amend are serialized
// through a single writer lock, and installing a new version swaps the
// cached contract pointer atomically so in-flight readers observe either
// the old version or the new one, never a mixture.
type Registry struct {
	store  Store
	logger *logging.ComponentLogger

	writeMu sync.Mutex // serializes Approve/Amend

	mu       sync.RWMutex
	current  map[string]*schema.SchemaContract   // scope id -> highest approved
	byID     map[string]*schema.SchemaContract   // contract id -> contract
	versions map[string][]*schema.SchemaContract // scope id -> all versions, ascending
	drafts   map[string]*Draft
}

// Open loads all persisted contracts into the read cache.
func Open(ctx context.Context, store Store, logger *logging.ComponentLogger) (*Registry, error) {
	r := &Registry{
		store:    store,
		logger:   logger,
		current:  make(map[string]*schema.SchemaContract),
		byID:     make(map[string]*schema.SchemaContract),
		versions: make(map[string][]*schema.SchemaContract),
		drafts:   make(map[string]*Draft),
	}

	contracts, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts: %w", err)
	}
	for _, c := range contracts {
		r.install(c)
	}

	logger.Info().
		Int("contracts", len(contracts)).
		Int("scopes", len(r.current)).
		Msg("Opened contract registry")
	return r, nil
}

// install places a contract into the cache. Caller holds no locks during
// Open; Approve/Amend take mu.Lock around it.
func (r *Registry) install(c *schema.SchemaContract) {
	r.byID[c.ContractID] = c
	r.versions[c.ScopeID] = append(r.versions[c.ScopeID], c)
	sort.Slice(r.versions[c.ScopeID], func(i, j int) bool {
		return r.versions[c.ScopeID][i].Version < r.versions[c.ScopeID][j].Version
	})
	if cur, ok := r.current[c.ScopeID]; !ok || c.Version > cur.Version {
		r.current[c.ScopeID] = c
	}
}

// Propose creates a draft for the next version of the scope's contract.
// Schemas are validated and their content hashes sealed here so the
// approval surface reviews exactly what will be locked.
func (r *Registry) Propose(scopeID string, schemas []schema.LockedSchema) (*Draft, error) {
	if scopeID == "" {
		return nil, fmt.Errorf("scope id is required")
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("at least one schema is required")
	}

	locked := make([]schema.LockedSchema, 0, len(schemas))
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		s = s.Lock()
		if s.SchemaID == "" {
			s.SchemaID = uuid.NewString()
		}
		locked = append(locked, s)
	}

	version := 1
	r.mu.RLock()
	if cur, ok := r.current[scopeID]; ok {
		version = cur.Version + 1
	}
	r.mu.RUnlock()

	draft := &Draft{
		DraftID:   uuid.NewString(),
		ScopeID:   scopeID,
		Version:   version,
		Schemas:   locked,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.drafts[draft.DraftID] = draft
	r.mu.Unlock()

	r.logger.Info().
		Str("draft_id", draft.DraftID).
		Str("scope_id", scopeID).
		Int("version", version).
		Int("schemas", len(locked)).
		Msg("Proposed contract draft")
	return draft, nil
}

// Approve turns a draft into an immutable contract. Fails with
// *VersionExistsError if the draft's version is already approved for the
// scope.
func (r *Registry) Approve(ctx context.Context, draft *Draft, approver string) (*schema.SchemaContract, error) {
	if approver == "" {
		return nil, fmt.Errorf("approver is required")
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	for _, existing := range r.versions[draft.ScopeID] {
		if existing.Version == draft.Version {
			r.mu.RUnlock()
			return nil, &VersionExistsError{ScopeID: draft.ScopeID, Version: draft.Version}
		}
	}
	r.mu.RUnlock()

	contract := &schema.SchemaContract{
		ContractID: uuid.NewString(),
		ScopeID:    draft.ScopeID,
		ApprovedAt: time.Now().UTC(),
		ApprovedBy: approver,
		Version:    draft.Version,
		Schemas:    draft.Schemas,
	}
	if err := contract.Validate(); err != nil {
		return nil, err
	}
	if err := r.store.Insert(ctx, contract); err != nil {
		return nil, fmt.Errorf("failed to persist contract: %w", err)
	}

	r.mu.Lock()
	r.install(contract)
	delete(r.drafts, draft.DraftID)
	r.mu.Unlock()

	r.logger.Info().
		Str("contract_id", contract.ContractID).
		Str("scope_id", contract.ScopeID).
		Int("version", contract.Version).
		Str("approved_by", approver).
		Msg("Approved contract")
	return contract, nil
}

// Resolve returns the current (highest approved) contract for a scope.
// This is the hot read path during execution.
func (r *Registry) Resolve(scopeID string) (*schema.SchemaContract, error) {
	r.mu.RLock()
	c, ok := r.current[scopeID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scope %s: %w", scopeID, ErrNoContract)
	}
	return c, nil
}

// Amend approves new schemas as version N+1 of an existing contract's
// scope. Version N stays readable; nothing is mutated in place.
func (r *Registry) Amend(ctx context.Context, contractID string, approver string, schemas []schema.LockedSchema) (*schema.SchemaContract, error) {
	r.mu.RLock()
	prior, ok := r.byID[contractID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown contract %s", contractID)
	}

	draft, err := r.Propose(prior.ScopeID, schemas)
	if err != nil {
		return nil, err
	}
	return r.Approve(ctx, draft, approver)
}

// Versions returns every approved version for a scope, ascending, for
// audit.
func (r *Registry) Versions(scopeID string) []*schema.SchemaContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.SchemaContract, len(r.versions[scopeID]))
	copy(out, r.versions[scopeID])
	return out
}

// Contract returns a contract by id, any version.
func (r *Registry) Contract(contractID string) (*schema.SchemaContract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[contractID]
	return c, ok
}

// Drafts returns pending drafts for the approval surface.
func (r *Registry) Drafts() []*Draft {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Draft, 0, len(r.drafts))
	for _, d := range r.drafts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close closes the backing store.
func (r *Registry) Close() error {
	return r.store.Close()
}
