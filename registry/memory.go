package registry

import (
	"context"
	"sync"

	"github.com/sl224/casparianflow-sub002/schema"
)

// MemoryStore keeps contracts in memory. Used by tests and interactive
// preview sessions that never persist approvals.
type MemoryStore struct {
	mu        sync.Mutex
	contracts []*schema.SchemaContract
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends the contract, rejecting duplicate (scope_id, version).
func (s *MemoryStore) Insert(_ context.Context, contract *schema.SchemaContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contracts {
		if c.ScopeID == contract.ScopeID && c.Version == contract.Version {
			return &VersionExistsError{ScopeID: contract.ScopeID, Version: contract.Version}
		}
	}
	s.contracts = append(s.contracts, contract)
	return nil
}

// LoadAll returns all stored contracts.
func (s *MemoryStore) LoadAll(_ context.Context) ([]*schema.SchemaContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schema.SchemaContract, len(s.contracts))
	copy(out, s.contracts)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
