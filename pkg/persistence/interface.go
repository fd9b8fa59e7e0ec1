package persistence

import "github.com/ethereum/go-ethereum/common"

// ClaimStore defines the interface for persisting refund ledger state across
// restarts. All implementations must be safe for concurrent use.
//
// Claim records are monotonic: an address moves from unclaimed to claimed
// exactly once and the interface deliberately offers no way back. The
// contract checks IsClaimed before SetClaimed, so SetClaimed on an
// already-claimed address is idempotent rather than an error.
type ClaimStore interface {
	// Claim Records

	// SetClaimed marks an address as having claimed its refund.
	// Idempotent. Returns error only on storage failure.
	SetClaimed(addr common.Address) error

	// IsClaimed reports whether an address has already claimed.
	// Returns false for unknown addresses, error only on storage failure.
	IsClaimed(addr common.Address) (bool, error)

	// ListClaimed returns all claimed addresses sorted in ascending byte
	// order. Returns empty slice if nothing has been claimed yet.
	ListClaimed() ([]common.Address, error)

	// Contract State

	// SaveContractState persists the ledger's fixed parameters and balance.
	// Overwrites any existing state.
	SaveContractState(state *ContractState) error

	// LoadContractState retrieves the persisted ledger state.
	// Returns nil state if none exists (first run), error only on storage
	// failure.
	LoadContractState() (*ContractState, error)

	// Lifecycle Management

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return errors.
	Close() error

	// HealthCheck verifies the store is operational.
	// Returns nil if healthy, error describing the problem if not.
	// Called during server startup to fail fast.
	HealthCheck() error
}
