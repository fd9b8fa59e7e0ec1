package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fairdrop-labs/refund-distributor-go/pkg/persistence"
)

// MemoryStore is an in-memory implementation of ClaimStore.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Copies state on the way in and out to prevent external mutation.
type MemoryStore struct {
	mu sync.RWMutex

	// Claim records: address -> claimed
	claimed map[common.Address]bool

	// Ledger state
	state *persistence.ContractState

	// Closed flag
	closed bool
}

var _ persistence.ClaimStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory claim store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claimed: make(map[common.Address]bool),
	}
}

// SetClaimed marks an address as claimed. Idempotent.
func (m *MemoryStore) SetClaimed(addr common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("claim store is closed")
	}

	m.claimed[addr] = true
	return nil
}

// IsClaimed reports whether an address has claimed.
func (m *MemoryStore) IsClaimed(addr common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, fmt.Errorf("claim store is closed")
	}

	return m.claimed[addr], nil
}

// ListClaimed returns all claimed addresses sorted ascending.
func (m *MemoryStore) ListClaimed() ([]common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("claim store is closed")
	}

	addrs := make([]common.Address, 0, len(m.claimed))
	for addr := range m.claimed {
		addrs = append(addrs, addr)
	}

	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})

	return addrs, nil
}

// SaveContractState persists ledger state, overwriting any existing state.
func (m *MemoryStore) SaveContractState(state *persistence.ContractState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ContractState")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("claim store is closed")
	}

	m.state = copyState(state)
	return nil
}

// LoadContractState retrieves ledger state, nil if none was saved.
func (m *MemoryStore) LoadContractState() (*persistence.ContractState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("claim store is closed")
	}

	if m.state == nil {
		return nil, nil
	}
	return copyState(m.state), nil
}

// Close shuts down the store. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the store is usable.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("claim store is closed")
	}
	return nil
}

// copyState deep-copies a ContractState, including the balance and the
// event log amounts.
func copyState(state *persistence.ContractState) *persistence.ContractState {
	out := *state
	if state.Balance != nil {
		out.Balance = state.Balance.Clone()
	}
	if state.Events != nil {
		out.Events = make([]persistence.EventRecord, len(state.Events))
		for i, ev := range state.Events {
			out.Events[i] = ev
			if ev.Amount != nil {
				out.Events[i].Amount = ev.Amount.Clone()
			}
		}
	}
	return &out
}
