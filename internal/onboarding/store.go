package onboarding

import (
	"context"
	"encoding/json"
	"sync"
)

// AnyVersion makes Put overwrite the stored document unconditionally.
const AnyVersion int64 = -1

// Store persists one onboarding document per tenant. Writes are atomic per
// tenant document.
type Store interface {
	// Get returns the stored state or ErrStateNotFound.
	Get(ctx context.Context, tenantID string) (*OnboardingState, error)
	// Put writes state. Unless expectedVersion is AnyVersion, the stored
	// document must exist with that version, otherwise ErrConflict is returned.
	Put(ctx context.Context, state *OnboardingState, expectedVersion int64) error
}

// MemoryStore keeps encoded documents in process memory. It backs tests and
// single-node development setups.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, tenantID string) (*OnboardingState, error) {
	m.mu.RLock()
	data, ok := m.docs[tenantID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}

	var state OnboardingState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, storageError("decode onboarding state", err)
	}
	return &state, nil
}

func (m *MemoryStore) Put(ctx context.Context, state *OnboardingState, expectedVersion int64) error {
	data, err := json.Marshal(state)
	if err != nil {
		return storageError("encode onboarding state", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if expectedVersion != AnyVersion {
		current, ok := m.docs[state.TenantID]
		if !ok {
			return ErrConflict
		}
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(current, &stored); err != nil {
			return storageError("decode onboarding state", err)
		}
		if stored.Version != expectedVersion {
			return ErrConflict
		}
	}

	m.docs[state.TenantID] = data
	return nil
}

// Raw returns the encoded document for tenantID
func (m *MemoryStore) Raw(tenantID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[tenantID]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}
